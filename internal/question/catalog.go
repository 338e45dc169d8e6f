package question

import "github.com/victornm/chotrivia/internal/domain"

var catalog = []domain.Question{
	{Text: "What do titans start their life as?", Answers: []string{"World-souls", "World souls"}},
	{Text: "Where do the orcs originate from?", Answers: []string{"Draenor"}},
	{Text: "By what name are blood elves known as formally?", Answers: []string{"Sin'dorei"}},
	{Text: "Where was Dalaran located before moving to Northrend?", Answers: []string{"Hillsbrad Foothills", "Hillsbrad"}},
	{Text: "Who cursed the earthen and other titanic creations with the curse of flesh?", Answers: []string{"Yogg-Saron"}},
	{Text: "Onyxia spied on Stormwind under the guise of who?", Answers: []string{"Katrana Prestor", "Lady Katrana Prestor", "Lady Prestor"}},
	{Text: "Where did Thrall's Horde shipwreck before reaching Kalimdor?", Answers: []string{"Darkspear Islands"}},
	{Text: "Who led the Cult of the Damned during the rise of the Scourge?", Answers: []string{"Kel'Thuzad"}},
	{Text: "Where was the Exodar originally located before departing? (be specific)", Answers: []string{"Tempest Keep"}},
	{Text: "Which dragon aspect was corrupted and started the infinite dragonflight?", Answers: []string{"Nozdormu"}},
	{Text: "In which expansion was Thousand Needles flooded?", Answers: []string{"Cataclysm", "Cata"}},
	{Text: "Which swamp was turned into a wasteland over time?", Answers: []string{"Black Morass", "Morass"}},
	{Text: "Who became the Lich King after the downfall of Arthas?", Answers: []string{"Bolvar Fordragon", "Bolvar", "Fordragon"}},
	{Text: "Who was Medivh's apprentice?", Answers: []string{"Khadgar"}},
	{Text: "Who possessed Medivh before his untimely death?", Answers: []string{"Sargeras"}},
	{Text: "What were Gilnean druids originally referred as?", Answers: []string{"Harvest Witches", "Harvest-Witches", "Harvest Witch"}},
}

// Default returns a copy of the built-in question catalog.
func Default() []domain.Question {
	return Clone(catalog)
}

package dialog

import (
	"strings"
	"unicode"

	"parts-order-bot/internal/domain"
)

// Reply describes what the bot has to say in one turn.
type Reply struct {
	Language domain.Language
	Status   domain.OrderStatus
	Plan     Plan
	// Variant selects the question wording; consecutive values give
	// different sentences.
	Variant      int
	Apologize    bool
	Retry        bool
	InvalidSlots []string
}

var questions = map[domain.Language]map[domain.QuestionType][]string{
	domain.LanguageDE: {
		domain.QuestionVehicle: {
			"Um welches Fahrzeug geht es? Am schnellsten geht es mit der Fahrgestellnummer (VIN) oder HSN und TSN aus dem Fahrzeugschein.",
			"Können Sie mir bitte Marke, Modell und Baujahr Ihres Fahrzeugs nennen? Alternativ reicht die VIN.",
			"Schicken Sie mir gern HSN und TSN (Feld 2.1 und 2.2 im Fahrzeugschein), dann finde ich Ihr Auto sofort.",
		},
		domain.QuestionPartName: {
			"Welches Teil benötigen Sie?",
			"Wie heißt das Ersatzteil, das Sie suchen? Eine kurze Beschreibung reicht auch.",
			"Sagen Sie mir bitte, welches Teil getauscht werden soll.",
		},
		domain.QuestionPosition: {
			"Für welche Einbauposition brauchen Sie das Teil (vorne/hinten, links/rechts)?",
			"Wird das Teil vorne oder hinten benötigt, und auf welcher Seite?",
			"Bitte nennen Sie mir noch die Einbauseite, z. B. vorne links.",
		},
		domain.QuestionSymptoms: {
			"Was genau ist Ihnen am Fahrzeug aufgefallen?",
			"Beschreiben Sie mir bitte kurz, welches Problem auftritt.",
		},
	},
	domain.LanguageEN: {
		domain.QuestionVehicle: {
			"Which vehicle is it for? The quickest way is the VIN or the HSN and TSN from the registration document.",
			"Could you tell me the make, model and year of your car? The VIN works as well.",
			"Feel free to send me HSN and TSN (fields 2.1 and 2.2 of the registration), then I can find your car right away.",
		},
		domain.QuestionPartName: {
			"Which part do you need?",
			"What is the name of the spare part you are looking for? A short description is fine too.",
			"Please tell me which part needs replacing.",
		},
		domain.QuestionPosition: {
			"Which mounting position do you need (front/rear, left/right)?",
			"Is the part needed at the front or the rear, and on which side?",
			"Please tell me the mounting side, for example front left.",
		},
		domain.QuestionSymptoms: {
			"What exactly did you notice on the car?",
			"Please briefly describe the problem you are having.",
		},
	},
}

var justifications = map[domain.Language]map[domain.QuestionType]string{
	domain.LanguageDE: {
		domain.QuestionVehicle:  "Ohne eindeutige Fahrzeugdaten kann ich nicht garantieren, dass das Teil passt.",
		domain.QuestionPartName: "Damit suche ich gezielt nach dem richtigen Artikel.",
		domain.QuestionPosition: "Die Teile unterscheiden sich je nach Einbauposition.",
		domain.QuestionSymptoms: "So kann ich das passende Teil eingrenzen.",
	},
	domain.LanguageEN: {
		domain.QuestionVehicle:  "Without a clear vehicle identification I cannot guarantee the part will fit.",
		domain.QuestionPartName: "That lets me search for exactly the right item.",
		domain.QuestionPosition: "Parts differ depending on where they are mounted.",
		domain.QuestionSymptoms: "That helps me narrow down the right part.",
	},
}

var apologies = map[domain.Language]string{
	domain.LanguageDE: "Entschuldigung, dass ich noch einmal nachfragen muss.",
	domain.LanguageEN: "Sorry for having to ask again.",
}

var retries = map[domain.Language]string{
	domain.LanguageDE: "Entschuldigung, das konnte ich gerade nicht verarbeiten. Könnten Sie Ihre Nachricht bitte wiederholen?",
	domain.LanguageEN: "Sorry, I could not process that just now. Could you please repeat your message?",
}

var invalidNotes = map[domain.Language]string{
	domain.LanguageDE: "Diese Angabe konnte ich nicht übernehmen: ",
	domain.LanguageEN: "I could not use this value: ",
}

var slotLabels = map[domain.Language]map[string]string{
	domain.LanguageDE: {
		domain.VehicleFieldVIN:  "Fahrgestellnummer",
		domain.VehicleFieldHSN:  "HSN",
		domain.VehicleFieldTSN:  "TSN",
		domain.VehicleFieldYear: "Baujahr",
	},
	domain.LanguageEN: {
		domain.VehicleFieldVIN:  "VIN",
		domain.VehicleFieldHSN:  "HSN",
		domain.VehicleFieldTSN:  "TSN",
		domain.VehicleFieldYear: "year",
	},
}

var statusReplies = map[domain.Language]map[domain.OrderStatus]string{
	domain.LanguageDE: {
		domain.StatusOEMLookup:  "Danke, ich habe alle Angaben. Ich suche jetzt die passende OEM-Nummer und melde mich mit Angeboten.",
		domain.StatusShowOffers: "Ihre Angebote liegen bereit. Antworten Sie einfach, wenn Sie bestellen möchten.",
		domain.StatusDone:       "Ihre Bestellung ist abgeschlossen. Vielen Dank!",
	},
	domain.LanguageEN: {
		domain.StatusOEMLookup:  "Thanks, I have everything I need. I am now looking up the OEM number and will get back to you with offers.",
		domain.StatusShowOffers: "Your offers are ready. Just reply if you would like to order.",
		domain.StatusDone:       "Your order is complete. Thank you!",
	},
}

// LanguagePrompt is sent while the conversation language is unknown.
const LanguagePrompt = "Hallo! Möchten Sie auf Deutsch oder Englisch schreiben? / Hi! Would you like to continue in German or English?"

// LanguageRetryPrompt is sent when the very first message could not be
// processed.
const LanguageRetryPrompt = "Entschuldigung, bitte wiederholen Sie Ihre Nachricht. / Sorry, please repeat your message."

// Render produces the reply text. It never consults anything outside r.
func Render(r Reply) string {
	lang := r.Language
	if !lang.Valid() {
		if r.Retry {
			return LanguageRetryPrompt
		}
		return LanguagePrompt
	}

	var parts []string
	if r.Retry {
		parts = append(parts, retries[lang])
		if r.Plan.Slot != "" {
			parts = append(parts, question(lang, r.Plan.Slot, 0))
		}
		return strings.Join(parts, " ")
	}

	if r.Apologize {
		parts = append(parts, apologies[lang])
	}
	if note := invalidNote(lang, r.InvalidSlots); note != "" {
		parts = append(parts, note)
	}

	switch {
	case r.Plan.Slot != "":
		parts = append(parts, question(lang, r.Plan.Slot, r.Variant))
		if r.Plan.Rephrase {
			parts = append(parts, justifications[lang][r.Plan.Slot])
		}
	case r.Status == domain.StatusChooseLanguage:
		parts = append(parts, LanguagePrompt)
	default:
		if text, ok := statusReplies[lang][r.Status]; ok {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// StatusReply is the reply for messages arriving after collection ended.
func StatusReply(lang domain.Language, status domain.OrderStatus) string {
	if !lang.Valid() {
		lang = domain.LanguageDE
	}
	return statusReplies[lang][status]
}

func question(lang domain.Language, slot domain.QuestionType, variant int) string {
	variants := questions[lang][slot]
	if len(variants) == 0 {
		return ""
	}
	if variant < 0 {
		variant = -variant
	}
	return variants[variant%len(variants)]
}

func invalidNote(lang domain.Language, slots []string) string {
	labels := make([]string, 0, len(slots))
	for _, s := range slots {
		if l, ok := slotLabels[lang][s]; ok {
			labels = append(labels, l)
		}
	}
	if len(labels) == 0 {
		return ""
	}
	return invalidNotes[lang] + strings.Join(labels, ", ") + "."
}

var languageWords = map[string]domain.Language{
	"de":       domain.LanguageDE,
	"deutsch":  domain.LanguageDE,
	"german":   domain.LanguageDE,
	"germany":  domain.LanguageDE,
	"en":       domain.LanguageEN,
	"english":  domain.LanguageEN,
	"englisch": domain.LanguageEN,
}

// languageFiller may surround a language answer, as in "auf Deutsch bitte".
var languageFiller = map[string]bool{
	"auf": true, "bitte": true, "in": true, "ich": true, "sprache": true,
	"please": true, "i": true, "speak": true, "language": true,
}

// LanguageChoice recognises a bare answer to the language prompt, such as
// "Deutsch" or "english please". Any other word in the message means it
// carries more than a language choice, and "" is returned.
func LanguageChoice(text string) domain.Language {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 || len(words) > 3 {
		return ""
	}
	var choice domain.Language
	for _, w := range words {
		lang, ok := languageWords[w]
		switch {
		case ok && choice != "" && choice != lang:
			return ""
		case ok:
			choice = lang
		case !languageFiller[w]:
			return ""
		}
	}
	return choice
}

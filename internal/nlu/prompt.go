package nlu

import (
	"encoding/json"
	"fmt"
	"strings"

	"parts-order-bot/internal/domain"
)

// SchemaName names the structured output format sent to the model.
const SchemaName = "slot_extraction"

// Schema is the strict JSON schema of the extraction response.
var Schema = json.RawMessage(`{
	"type":"object",
	"additionalProperties":false,
	"properties":{
		"intent":{"type":"string"},
		"language":{"type":"string","enum":["","de","en"]},
		"vehicle":{
			"type":"object",
			"additionalProperties":false,
			"properties":{
				"vin":{"type":"string"},
				"hsn":{"type":"string"},
				"tsn":{"type":"string"},
				"make":{"type":"string"},
				"model":{"type":"string"},
				"year":{"type":"string"},
				"engine":{"type":"string"}
			},
			"required":["vin","hsn","tsn","make","model","year","engine"]
		},
		"part":{
			"type":"object",
			"additionalProperties":false,
			"properties":{
				"partCategory":{"type":"string"},
				"position":{"type":"string"},
				"partText":{"type":"string"},
				"normalizedPartName":{"type":"string"},
				"positionNeeded":{"type":["boolean","null"]}
			},
			"required":["partCategory","position","partText","normalizedPartName","positionNeeded"]
		},
		"frustrationSignal":{"type":"boolean"},
		"invalidatedVehicleFields":{
			"type":"array",
			"items":{"type":"string","enum":["vin","hsn","tsn","make","model","year","engine"]}
		}
	},
	"required":["intent","language","vehicle","part","frustrationSignal","invalidatedVehicleFields"]
}`)

type priorState struct {
	Language domain.Language `json:"language,omitempty"`
	Vehicle  domain.Vehicle  `json:"vehicle"`
	Part     domain.Part     `json:"part"`
}

func buildMessages(rules string, req Request) []domain.ChatMessage {
	if strings.TrimSpace(rules) == "" {
		rules = defaultRules()
	}
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: buildPolicyPrompt(rules)},
		{Role: domain.RoleSystem, Content: buildStatePrompt(req)},
		{Role: domain.RoleUser, Content: req.UserText},
	}
}

func buildPolicyPrompt(rules string) string {
	return strings.Join([]string{
		"Role:",
		"You extract structured order data for a car parts shop that takes orders over WhatsApp.",
		"",
		"Task:",
		"Read the customer's latest message and report only what it states about the vehicle and the wanted part.",
		"You never decide what to ask next and you never write the reply to the customer.",
		"",
		"Extraction Rules:",
		strings.TrimSpace(rules),
		"",
		"Output Contract:",
		outputContract(),
	}, "\n")
}

func buildStatePrompt(req Request) string {
	state, err := json.Marshal(priorState{
		Language: req.Language,
		Vehicle:  req.PriorVehicle,
		Part:     req.PriorPart,
	})
	if err != nil {
		state = []byte("{}")
	}
	return fmt.Sprintf("Known order data (do not repeat it unless the customer restates or corrects it):\n%s", state)
}

func defaultRules() string {
	return strings.Join([]string{
		"1) Leave every field empty (\"\") when the message does not state it. Never guess.",
		"2) vin is the 17 character vehicle identification number; hsn (4 digits) and tsn (3 characters) come from the German registration document.",
		"3) year is the model year as written by the customer, e.g. \"2004\".",
		"4) partText is the part as the customer named it; normalizedPartName is its common English name.",
		"5) partCategory is one of brake_component, suspension_component, steering_component, lighting_component, body_component, wheel_component, ignition_component, engine_component, filter_component, electrical_component, other.",
		"6) position is the mounting position (front, rear, left, right, front_left, ...) when stated.",
		"7) positionNeeded is true when this part exists in several mounting positions, false when it does not, null when unsure.",
		"8) frustrationSignal is true when the customer sounds annoyed, impatient or says they already gave the information.",
		"9) invalidatedVehicleFields lists known vehicle fields the customer corrects or contradicts in this message.",
		"10) language is the language of the message (de or en), empty when it cannot be told.",
		"11) intent is a short snake_case label such as order_part, provide_vehicle, provide_position, smalltalk, complaint.",
	}, "\n")
}

func outputContract() string {
	return "Return JSON only with keys intent, language, vehicle, part, frustrationSignal and invalidatedVehicleFields. " +
		"Use empty strings for unknown text fields and null for an unknown positionNeeded."
}

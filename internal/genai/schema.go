package genai

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// turnPayload is the wire shape the model is constrained to produce. The
// delta ranges in the descriptions are guidance only; mechanical bounds are
// applied downstream when the delta is folded into the room state.
type turnPayload struct {
	Content    string       `json:"content" jsonschema_description:"The character's reply, short messenger-style text."`
	StateDelta payloadDelta `json:"stateDelta" jsonschema_description:"How this exchange shifts the character's feelings toward the user."`
}

type payloadDelta struct {
	Affection float64 `json:"affection" jsonschema_description:"Change in affection, usually between -10 and 15."`
	Jealousy  float64 `json:"jealousy" jsonschema_description:"Change in jealousy, usually between -10 and 10."`
	Anger     float64 `json:"anger" jsonschema_description:"Change in anger, usually between -10 and 10."`
	Trust     float64 `json:"trust" jsonschema_description:"Change in trust, usually between -10 and 10."`
}

// generateSchema reflects T into a JSON schema and rewrites it into the shape
// OpenAI's strict structured-output mode accepts: every object level gets
// additionalProperties:false and all of its properties marked required.
func generateSchema[T any]() map[string]interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)
	schemaObj, err := schemaToMap(schema)
	if err != nil {
		panic(err)
	}
	ensureOpenAICompliance(schemaObj)
	return schemaObj
}

func schemaToMap(schema *jsonschema.Schema) (map[string]interface{}, error) {
	b, err := schema.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

const (
	propertiesKey           = "properties"
	additionalPropertiesKey = "additionalProperties"
	typeKey                 = "type"
	requiredKey             = "required"
	itemsKey                = "items"
)

func ensureOpenAICompliance(schema map[string]interface{}) {
	if schemaType, ok := schema[typeKey].(string); ok && schemaType == "object" {
		schema[additionalPropertiesKey] = false

		if properties, ok := schema[propertiesKey].(map[string]interface{}); ok {
			var requiredFields []string
			for propName := range properties {
				requiredFields = append(requiredFields, propName)
			}
			if len(requiredFields) > 0 {
				schema[requiredKey] = requiredFields
			}
		}
	}

	if properties, ok := schema[propertiesKey].(map[string]interface{}); ok {
		for _, prop := range properties {
			if propMap, ok := prop.(map[string]interface{}); ok {
				ensureOpenAICompliance(propMap)
			}
		}
	}

	if items, ok := schema[itemsKey].(map[string]interface{}); ok {
		ensureOpenAICompliance(items)
	}

	if additionalProps, ok := schema[additionalPropertiesKey].(map[string]interface{}); ok {
		ensureOpenAICompliance(additionalProps)
	}
}

package config

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/frye/ais-to-nmea0183/errors"
)

// boundingBoxSchema validates the JSON shape of a bounding-box replacement
// payload delivered over the control surface's hot-swap endpoint, before
// it ever reaches SafeConfig.ReplaceBoundingBox. Structural checks belong
// here; the south<north relational check that Validate performs cannot be
// expressed in JSON Schema's draft-4 dialect, so it is applied afterward
// in code.
const boundingBoxSchema = `{
	"type": "object",
	"required": ["north", "south", "east", "west"],
	"properties": {
		"north": {"type": "number", "minimum": -90, "maximum": 90},
		"south": {"type": "number", "minimum": -90, "maximum": 90},
		"east":  {"type": "number", "minimum": -180, "maximum": 180},
		"west":  {"type": "number", "minimum": -180, "maximum": 180}
	},
	"additionalProperties": false
}`

var boundingBoxSchemaLoader = gojsonschema.NewStringLoader(boundingBoxSchema)

// ValidateBoundingBoxPayload checks a raw JSON bounding-box replacement
// payload against boundingBoxSchema, turning a malformed control-surface
// request into a classified ConfigInvalid error rather than a panic deep
// in json.Unmarshal or SafeConfig.Update.
func ValidateBoundingBoxPayload(payload []byte) error {
	result, err := gojsonschema.Validate(boundingBoxSchemaLoader, gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return errors.WrapInvalid(err, "config", "ValidateBoundingBoxPayload", "evaluate JSON schema")
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return errors.WrapInvalid(
			fmt.Errorf("%s", strings.Join(msgs, "; ")),
			"config", "ValidateBoundingBoxPayload", "schema validation failed",
		)
	}
	return nil
}

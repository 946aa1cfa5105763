package upstream

import "github.com/frye/ais-to-nmea0183/config"

// subscriptionFrame is the single outbound subscription message, sent as
// JSON text within 3 seconds of handshake completion, per spec.md §4.4.
// The field names and the nested [[south,west],[north,east]] bounding-box
// shape are the wire contract — SPEC_FULL.md §9 records that this
// serialized order, not the in-memory BoundingBox field order, is what
// spec.md's open question resolves as binding.
type subscriptionFrame struct {
	APIKey        string        `json:"APIKey"`
	BoundingBoxes [][][2]float64 `json:"BoundingBoxes"`
}

func newSubscriptionFrame(apiKey string, bbox config.BoundingBox) subscriptionFrame {
	return subscriptionFrame{
		APIKey: apiKey,
		BoundingBoxes: [][][2]float64{
			{
				{bbox.South, bbox.West},
				{bbox.North, bbox.East},
			},
		},
	}
}

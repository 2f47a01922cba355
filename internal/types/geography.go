package types

// Geography tags the three locale dimensions a geographic record can carry.
type Geography string

const (
	GeographyCountry      Geography = "country"
	GeographyRegion       Geography = "region"
	GeographyConstituency Geography = "constituency"
)

// GeographyHandler maps a geography tag to its storage and payload wiring.
// Resolved statically so there is no runtime name lookup.
type GeographyHandler struct {
	Geography  Geography
	TableName  string
	CodeColumn string
	// PayloadKey is the attribute key in the remote payload carrying the
	// per-locale breakdown list.
	PayloadKey string
}

var geographyHandlers = map[Geography]GeographyHandler{
	GeographyCountry: {
		Geography:  GeographyCountry,
		TableName:  SignaturesByCountry{}.TableName(),
		CodeColumn: "iso_code",
		PayloadKey: "signatures_by_country",
	},
	GeographyRegion: {
		Geography:  GeographyRegion,
		TableName:  SignaturesByRegion{}.TableName(),
		CodeColumn: "ons_code",
		PayloadKey: "signatures_by_region",
	},
	GeographyConstituency: {
		Geography:  GeographyConstituency,
		TableName:  SignaturesByConstituency{}.TableName(),
		CodeColumn: "ons_code",
		PayloadKey: "signatures_by_constituency",
	},
}

func Geographies() []Geography {
	return []Geography{GeographyCountry, GeographyRegion, GeographyConstituency}
}

func (g Geography) Handler() (GeographyHandler, bool) {
	h, ok := geographyHandlers[g]
	return h, ok
}

func (g Geography) Valid() bool {
	_, ok := geographyHandlers[g]
	return ok
}

package types

type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldDate    FieldType = "date"
	FieldBoolean FieldType = "boolean"
	FieldGeo     FieldType = "geo"
)

type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyAnnual    Frequency = "annual"
	FrequencyIrregular Frequency = "irregular"
)

type PrivacyClassification string

const (
	PrivacyPublic       PrivacyClassification = "public"
	PrivacyRestricted   PrivacyClassification = "restricted"
	PrivacyConfidential PrivacyClassification = "confidential"
)

// DataContract describes what a dataset family must carry. Contracts are
// authored outside the pipeline and treated as immutable once loaded.
type DataContract struct {
	ContractID            string                `json:"contract_id" yaml:"contract_id"`
	Name                  string                `json:"name" yaml:"name"`
	DatasetFamily         string                `json:"dataset_family" yaml:"dataset_family"`
	Version               string                `json:"version,omitempty" yaml:"version"`
	Frequency             Frequency             `json:"frequency" yaml:"frequency"`
	PrivacyClassification PrivacyClassification `json:"privacy_classification" yaml:"privacy_classification"`
	RequiredFields        []FieldSpec           `json:"required_fields" yaml:"required_fields"`
	RequiredMetadata      MetadataRequirements  `json:"required_metadata" yaml:"required_metadata"`
}

type FieldSpec struct {
	Name        string    `json:"name" yaml:"name"`
	Type        FieldType `json:"type" yaml:"type"`
	Description string    `json:"description,omitempty" yaml:"description"`
	Required    bool      `json:"required" yaml:"required"`
}

type MetadataRequirements struct {
	SourceStatement   bool `json:"source_statement" yaml:"source_statement"`
	MethodDescription bool `json:"method_description" yaml:"method_description"`
	CoverageWindow    bool `json:"coverage_window" yaml:"coverage_window"`
	License           bool `json:"license" yaml:"license"`
	ContactInfo       bool `json:"contact_info" yaml:"contact_info"`
}

func ValidFieldType(t FieldType) bool {
	switch t {
	case FieldString, FieldNumber, FieldDate, FieldBoolean, FieldGeo:
		return true
	default:
		return false
	}
}

func ValidFrequency(f Frequency) bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyAnnual, FrequencyIrregular:
		return true
	default:
		return false
	}
}

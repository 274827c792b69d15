package metadata

import "time"

// Dataset is the identity record for an ingestible dataset.
type Dataset struct {
	DatasetID      string
	Name           string
	Category       string
	Description    string
	SourceAgency   string
	Priority       int
	IsActive       bool
	Metadata       map[string]any
	QualityScore   float64
	RecordCount    int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastProcessed  *time.Time
}

// DatasetSummary aggregates registry-wide counters for the dashboard.
type DatasetSummary struct {
	Total           int
	Active          int
	Categories      int
	TotalRecords    int64
	AvgQuality      float64
	LastProcessing  *time.Time
}

// UserPreference is a per-user typed key/value pair.
type UserPreference struct {
	UserID      string
	Key         string
	Value       string
	ValueType   string // string, number, boolean, json
	IsEncrypted bool
}

// ApiCredential is an outbound service credential. Secrets are stored as
// bcrypt hashes; VerifyAPICredentials never sees the plaintext again.
type ApiCredential struct {
	ServiceName   string
	APIKeyHash    string
	APISecretHash *string
	EndpointURL   string
	RateLimit     int
	ExpiresAt     *time.Time
	LastUsed      *time.Time
	UsageCount    int64
	IsActive      bool
}

// SystemConfig is a scoped system-wide key/value pair.
type SystemConfig struct {
	ConfigKey   string
	ConfigValue string
	ConfigType  string
	Description string
	IsSensitive bool
	Environment string
}

// AuditEvent is an append-only record of a user or system action.
type AuditEvent struct {
	ID              int64
	UserID          *string
	Action          string
	ResourceType    string
	ResourceID      *string
	Details         map[string]any
	IPAddress       *string
	UserAgent       *string
	Success         bool
	ErrorMessage    *string
	ExecutionTimeMs *int64
	Timestamp       time.Time
}

// AuditFilter narrows GetAuditLogs results.
type AuditFilter struct {
	UserID       string
	Action       string
	ResourceType string
	Success      *bool
	Since        *time.Time
	Until        *time.Time
	Limit        int
	Offset       int
}

// CategorizationRule maps a keyword set onto a category.
type CategorizationRule struct {
	RuleID      string
	Category    string
	Keywords    []string
	Priority    int
	IsActive    bool
	Description string
}

// defaultCategorizationRules seeds the registry with the six MVP
// categories, carried over from the original implementation's keyword
// lists.
var defaultCategorizationRules = []CategorizationRule{
	{RuleID: "popolazione", Category: "popolazione", Priority: 10, IsActive: true,
		Description: "Demografia e popolazione residente",
		Keywords:    []string{"popolazione", "demografia", "residenti", "natalita", "mortalita", "migrazione"}},
	{RuleID: "economia", Category: "economia", Priority: 10, IsActive: true,
		Description: "Indicatori economici e prezzi",
		Keywords:    []string{"economia", "pil", "prezzi", "inflazione", "produzione", "commercio", "export", "import"}},
	{RuleID: "lavoro", Category: "lavoro", Priority: 10, IsActive: true,
		Description: "Occupazione e mercato del lavoro",
		Keywords:    []string{"lavoro", "occupazione", "disoccupazione", "contratto", "tensione contrattuale", "impiego"}},
	{RuleID: "territorio", Category: "territorio", Priority: 10, IsActive: true,
		Description: "Geografia e organizzazione del territorio",
		Keywords:    []string{"territorio", "regione", "provincia", "comune", "area geografica"}},
	{RuleID: "istruzione", Category: "istruzione", Priority: 10, IsActive: true,
		Description: "Istruzione e formazione",
		Keywords:    []string{"istruzione", "scuola", "universita", "formazione", "laurea", "diploma"}},
	{RuleID: "salute", Category: "salute", Priority: 10, IsActive: true,
		Description: "Sanita e salute pubblica",
		Keywords:    []string{"salute", "sanita", "ospedale", "malattia", "medico", "assistenza sanitaria"}},
}

package storage

// TableDetails is the table holding one row per profiling run.
const TableDetails = "details"

// Detail is the schema of the details table. Payload columns hold
// serialized (and for perfdata, compressed) bytes.
type Detail struct {
	ID           string `gorm:"column:id;primaryKey;size:64"`
	URL          string `gorm:"column:url;size:2048;index"`
	CanonicalURL string `gorm:"column:canonical_url;size:2048;index"`
	Timestamp    int64  `gorm:"column:timestamp;not null;index"`
	ServerName   string `gorm:"column:server_name;size:255"`
	Perfdata     []byte `gorm:"column:perfdata"`
	Type         int    `gorm:"column:type;not null;default:0"`
	Cookie       []byte `gorm:"column:cookie"`
	Post         []byte `gorm:"column:post"`
	Get          []byte `gorm:"column:get"`
	PMU          int64  `gorm:"column:pmu;not null;default:0;index"`
	WT           int64  `gorm:"column:wt;not null;default:0;index"`
	CPU          int64  `gorm:"column:cpu;not null;default:0;index"`
	ServerID     string `gorm:"column:server_id;size:64"`
	ExtraTag     string `gorm:"column:extra_tag;size:255"`
}

// TableName implements gorm's tabler interface.
func (Detail) TableName() string {
	return TableDetails
}

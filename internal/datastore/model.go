package datastore

import "time"

// Disease is a curated reference entry, unique per (crop, name).
type Disease struct {
	ID          string `gorm:"primaryKey;size:64"`
	Crop        string `gorm:"size:64;not null;uniqueIndex:idx_diseases_crop_name,priority:1"`
	Name        string `gorm:"size:128;not null;uniqueIndex:idx_diseases_crop_name,priority:2"`
	EnglishName string `gorm:"size:128"`
	Condition   string `gorm:"type:text"` // conditions under which the disease develops
	Symptoms    string `gorm:"type:text"`
	Prevention  string `gorm:"type:text"`
	ImageURL    string `gorm:"size:1024"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// User is the minimal account row the diagnosis pipeline needs for its
// existence check. Account management lives elsewhere.
type User struct {
	ID        string `gorm:"primaryKey;size:64"`
	Nickname  string `gorm:"size:128"`
	CreatedAt time.Time
}

// DiagnosisRecord is one persisted diagnosis.
//
// When a prediction resolved against the local reference table DiseaseIDn
// equals ReferenceCoden. When it resolved only through the external
// reference service DiseaseIDn is nil and ReferenceCoden holds the external
// key. ReferenceCode1 is never empty; the secondary slot may be nil.
type DiagnosisRecord struct {
	ID             uint      `gorm:"primaryKey"`
	UserID         string    `gorm:"size:64;not null;index:idx_diagnoses_user_created,priority:1"`
	ImageURL       string    `gorm:"size:1024;not null"`
	ImageKey       string    `gorm:"size:512"` // object storage key, used to cascade deletes
	Approved       *bool     // set by review, nil until reviewed
	Confidence1    *int      // 0-100
	Confidence2    *int      // 0-100
	ReferenceCode1 string    `gorm:"size:128;not null"`
	ReferenceCode2 *string   `gorm:"size:128"`
	DiseaseID1     *string   `gorm:"size:64"`
	DiseaseID2     *string   `gorm:"size:64"`
	CreatedAt      time.Time `gorm:"index:idx_diagnoses_user_created,priority:2"`
}

// TableName keeps the table name short and stable across drivers.
func (DiagnosisRecord) TableName() string {
	return "diagnoses"
}

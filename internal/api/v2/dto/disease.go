// Package dto contains data transfer objects for API v2 responses.
// JSON keys match the field names the mobile client already consumes.
package dto

import (
	"time"

	"github.com/nongbuhae/cropdoc/internal/diagnosis"
	"github.com/nongbuhae/cropdoc/internal/disease"
)

// DiseaseInfo is the disease part shared by diagnosis responses.
type DiseaseInfo struct {
	DiseaseName      string `json:"diseaseName"`
	Condition        string `json:"condition"`
	Symptoms         string `json:"symptoms"`
	PreventionMethod string `json:"preventionMethod"`
	DiseaseImg       string `json:"diseaseImg"`
	PlantName        string `json:"plant_name"`
}

// DiagnoseResponse is returned by POST /disease/diagnose.
type DiagnoseResponse struct {
	DiseaseInfo
	DiagnosisResultID uint `json:"diagnosis_result_id"`
	Percent1          *int `json:"percent1"`
	Percent2          *int `json:"percent2"`
}

// DiagnosisRecord is one item of a records listing.
type DiagnosisRecord struct {
	DiseaseInfo
	DiagnosisResultID uint   `json:"diagnosis_result_id"`
	ImgURL            string `json:"img_url"`
	IsApproved        *bool  `json:"is_approved"`
	Percent1          *int   `json:"percent1"`
	Percent2          *int   `json:"percent2"`
	CreatedTime       string `json:"created_time"` // RFC 3339 in the server time zone
	Error             string `json:"error,omitempty"`
}

// DiagnosisRecordList wraps listings.
type DiagnosisRecordList struct {
	DiagnosisResults []DiagnosisRecord `json:"diagnosisResults"`
}

// AboutResponse is returned by GET /disease/about.
type AboutResponse struct {
	DiseaseName      string `json:"diseaseName"`
	Condition        string `json:"condition"`
	Symptoms         string `json:"symptoms"`
	PreventionMethod string `json:"preventionMethod"`
	DiseaseImg       string `json:"diseaseImg"`
	Plant            string `json:"plant"`
	DiseaseNameEng   string `json:"diseaseNameEng"`
}

// NewDiseaseInfo converts a descriptor. plant is used when the descriptor
// carries no crop.
func NewDiseaseInfo(d *disease.Descriptor, plant string) DiseaseInfo {
	if d == nil {
		return DiseaseInfo{PlantName: plant}
	}
	if d.Crop != "" {
		plant = d.Crop
	}
	return DiseaseInfo{
		DiseaseName:      d.Name,
		Condition:        d.Condition,
		Symptoms:         d.Symptoms,
		PreventionMethod: d.Prevention,
		DiseaseImg:       d.ImageURL,
		PlantName:        plant,
	}
}

// NewDiagnoseResponse converts a stored diagnosis result.
func NewDiagnoseResponse(res *diagnosis.Result, plant string) DiagnoseResponse {
	resp := DiagnoseResponse{DiseaseInfo: NewDiseaseInfo(&res.Descriptor, plant)}
	if res.Record != nil {
		resp.DiagnosisResultID = res.Record.ID
		resp.Percent1 = res.Record.Confidence1
		resp.Percent2 = res.Record.Confidence2
	}
	return resp
}

// NewDiagnosisRecordList converts listed entries. An entry whose disease
// could not be expanded keeps its record fields and carries errMessage(err)
// in Error.
func NewDiagnosisRecordList(entries []diagnosis.Entry, loc *time.Location, errMessage func(error) string) DiagnosisRecordList {
	if loc == nil {
		loc = time.UTC
	}
	out := DiagnosisRecordList{DiagnosisResults: make([]DiagnosisRecord, 0, len(entries))}
	for i := range entries {
		e := &entries[i]
		item := DiagnosisRecord{
			DiseaseInfo:       NewDiseaseInfo(e.Descriptor, ""),
			DiagnosisResultID: e.Record.ID,
			ImgURL:            e.Record.ImageURL,
			IsApproved:        e.Record.Approved,
			Percent1:          e.Record.Confidence1,
			Percent2:          e.Record.Confidence2,
			CreatedTime:       e.Record.CreatedAt.In(loc).Format(time.RFC3339),
		}
		if e.Err != nil {
			item.Error = errMessage(e.Err)
		}
		out.DiagnosisResults = append(out.DiagnosisResults, item)
	}
	return out
}

// NewAboutResponse converts a descriptor looked up for plant.
func NewAboutResponse(d *disease.Descriptor, plant string) AboutResponse {
	return AboutResponse{
		DiseaseName:      d.Name,
		Condition:        d.Condition,
		Symptoms:         d.Symptoms,
		PreventionMethod: d.Prevention,
		DiseaseImg:       d.ImageURL,
		Plant:            plant,
		DiseaseNameEng:   d.EnglishName,
	}
}

package models

import (
	"net/http"
	"time"
)

// ResponseModel is the OneBusAway-style envelope every /api/where endpoint answers with.
type ResponseModel struct {
	Code        int    `json:"code"`
	CurrentTime int64  `json:"currentTime"`
	Data        any    `json:"data,omitempty"`
	Text        string `json:"text"`
	Version     int    `json:"version"`
}

// ResponseCurrentTime is the envelope timestamp in epoch milliseconds.
func ResponseCurrentTime() int64 {
	return time.Now().UnixMilli()
}

func NewResponse(code int, data any, text string) ResponseModel {
	return ResponseModel{
		Code:        code,
		CurrentTime: ResponseCurrentTime(),
		Data:        data,
		Text:        text,
		Version:     2,
	}
}

func NewOKResponse(data any) ResponseModel {
	return NewResponse(http.StatusOK, data, "OK")
}

func NewEntryResponse(entry any, references ReferencesModel) ResponseModel {
	return NewOKResponse(EntryData{Entry: entry, References: references})
}

func NewListResponse(list any, references ReferencesModel, limitExceeded bool) ResponseModel {
	return NewOKResponse(ListData{List: list, LimitExceeded: limitExceeded, References: references})
}

// NewErrorResponse has no data block. Version 1 matches what OneBusAway clients
// expect on error bodies.
func NewErrorResponse(code int, text string) ResponseModel {
	return ResponseModel{
		Code:        code,
		CurrentTime: ResponseCurrentTime(),
		Text:        text,
		Version:     1,
	}
}

type EntryData struct {
	Entry      any             `json:"entry"`
	References ReferencesModel `json:"references"`
}

type ListData struct {
	List          any             `json:"list"`
	LimitExceeded bool            `json:"limitExceeded"`
	OutOfRange    bool            `json:"outOfRange"`
	References    ReferencesModel `json:"references"`
}

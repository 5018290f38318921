package model

type IndexRequest struct {
	Project string `json:"project" binding:"required"`
	Force   bool   `json:"force"`
}

type IndexResponse struct {
	Project        string `json:"project"`
	Status         string `json:"status"`
	AlreadyIndexed bool   `json:"already_indexed"`
	Files          int    `json:"files"`
	Classes        int    `json:"classes"`
	Methods        int    `json:"methods"`
	Errors         int    `json:"errors"`
	DurationMS     int64  `json:"duration_ms"`
}

type ResolveTypeRequest struct {
	Project        string `json:"project"`
	Name           string `json:"name" binding:"required"`
	ContextPackage string `json:"context_package"`
}

type GenerateTestResponse struct {
	Result
	DurationMS int64 `json:"duration_ms"`
}

type StatsResponse struct {
	Statistics Statistics `json:"statistics"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

package handler

// errorResponse is the local API's uniform error payload
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

package api

// AnalyzeRequest is the gate classification payload
type AnalyzeRequest struct {
	Text string `json:"text" validate:"required,max=20000"`
}

// ConsultRequest is the consult workflow payload
type ConsultRequest struct {
	Text string `json:"text" validate:"required,max=20000"`
}

// VerifyRequest is the citation verification payload
type VerifyRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=100,dive,min=1,max=32"`
}

// ConfigureRequest sets or clears one credential slot
type ConfigureRequest struct {
	Material string `json:"material" validate:"max=512"`
}

package adapters

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"offer-workflow-orchestrator/internal/domain"
)

const serviceDocumentGeneration = "document-generation"

type GenerateRequest struct {
	Template []byte
	Data     map[string]any
	Formats  []domain.DocumentFormat
}

type GenerateResult struct {
	RequestID string
	Files     domain.OfferDocuments
}

type DocumentClient struct {
	c jsonClient
}

func NewDocumentClient(cfg Config) *DocumentClient {
	return &DocumentClient{c: newJSONClient(serviceDocumentGeneration, cfg)}
}

type generateRequest struct {
	Template []byte                  `json:"template_base64"`
	Data     map[string]any          `json:"data"`
	Formats  []domain.DocumentFormat `json:"formats"`
}

type generateResponse struct {
	RequestID string `json:"request_id"`
	Files     struct {
		PDF  string `json:"pdf"`
		DOCX string `json:"docx"`
	} `json:"files"`
}

// Generate renders template with data into the requested formats and returns
// a file reference per format.
func (d *DocumentClient) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	if len(req.Template) == 0 {
		return GenerateResult{}, &Error{Service: serviceDocumentGeneration, Op: "generate", Err: errors.New("template is empty")}
	}
	formats := req.Formats
	if len(formats) == 0 {
		formats = []domain.DocumentFormat{domain.FormatPDF}
	}

	var resp generateResponse
	payload := generateRequest{Template: req.Template, Data: req.Data, Formats: formats}
	if err := d.c.doJSON(ctx, "generate", http.MethodPost, "/v1/documents", payload, &resp); err != nil {
		return GenerateResult{}, err
	}
	if resp.RequestID == "" {
		return GenerateResult{}, d.c.malformed("generate", "missing request_id")
	}
	out := GenerateResult{
		RequestID: resp.RequestID,
		Files:     domain.OfferDocuments{PDF: resp.Files.PDF, DOCX: resp.Files.DOCX},
	}
	for _, f := range formats {
		if f == domain.FormatPDF && out.Files.PDF == "" {
			return GenerateResult{}, d.c.malformed("generate", "missing pdf file reference")
		}
		if f == domain.FormatDOCX && out.Files.DOCX == "" {
			return GenerateResult{}, d.c.malformed("generate", "missing docx file reference")
		}
	}
	return out, nil
}

// Download fetches the raw bytes behind a file reference.
func (d *DocumentClient) Download(ctx context.Context, fileRef string) ([]byte, error) {
	if fileRef == "" {
		return nil, &Error{Service: serviceDocumentGeneration, Op: "download", Err: errors.New("file reference is empty")}
	}
	return d.c.do(ctx, "download", http.MethodGet, "/v1/files/"+url.PathEscape(fileRef), nil)
}

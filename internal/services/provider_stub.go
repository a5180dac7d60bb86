package services

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/discloseaudit/backend/internal/models"
)

// StubProvider is the offline extraction backend: it returns a schema-valid
// document with every table cell zeroed, deterministic for a given input.
// Used in development and tests where no model endpoint is reachable.
type StubProvider struct{}

func NewStubProvider() *StubProvider {
	return &StubProvider{}
}

func (p *StubProvider) Name() string {
	return "stub"
}

func (p *StubProvider) Model() string {
	return "stub-v1"
}

func (p *StubProvider) Extract(ctx context.Context, documentText string) (*models.StructuredDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	digest := sha256.Sum256([]byte(documentText))

	doc := &models.StructuredDocument{
		Sections: []models.Section{
			{
				Title:   "一、总体情况",
				Type:    models.SectionText,
				Content: fmt.Sprintf("Stub extraction of %d bytes (sha256 %x).", len(documentText), digest[:8]),
			},
			{
				Title:                "二、主动公开政府信息情况",
				Type:                 models.SectionDisclosureTable,
				ActiveDisclosureData: DisclosureTableSkeleton(),
			},
			{
				Title:     "三、收到和处理政府信息公开申请情况",
				Type:      models.SectionRequestTable,
				TableData: RequestTableSkeleton(),
			},
			{
				Title:                "四、政府信息公开行政复议、行政诉讼情况",
				Type:                 models.SectionReviewTable,
				ReviewLitigationData: ReviewTableSkeleton(),
			},
			{
				Title:   "五、存在的主要问题及改进情况",
				Type:    models.SectionText,
				Content: "无",
			},
			{
				Title:   "六、其他需要报告的事项",
				Type:    models.SectionText,
				Content: "无",
			},
		},
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

package undertone

import (
	"github.com/menta2k/undertone-analyzer/pkg/catalog"
	"github.com/menta2k/undertone-analyzer/pkg/types"
)

// Report is the serializable result shown to users
type Report struct {
	Name     string                `json:"name,omitempty"`
	OK       bool                  `json:"ok"`
	Label    types.UndertoneLabel  `json:"label,omitempty"`
	Sample   *types.ColorSample    `json:"sample,omitempty"`
	Hex      string                `json:"hex,omitempty"`
	Region   *types.SamplingRegion `json:"region,omitempty"`
	Face     *types.BoundingBox    `json:"face,omitempty"`
	Palette  []string              `json:"palette,omitempty"`
	Products []catalog.Product     `json:"products"`
	Error    types.FailureKind     `json:"error,omitempty"`
	Message  string                `json:"message"`

	Outcome types.Outcome `json:"-"`
}

// NewReport flattens an outcome and its recommended products
func NewReport(name string, outcome types.Outcome, products []catalog.Product) Report {
	r := Report{
		Name:     name,
		OK:       outcome.OK(),
		Products: []catalog.Product{},
		Message:  outcome.Message(),
		Outcome:  outcome,
	}
	if !outcome.OK() {
		r.Error = outcome.Kind()
		return r
	}

	sample := outcome.Sample
	sampled := outcome.Region
	r.Label = outcome.Label
	r.Sample = &sample
	r.Hex = sample.Hex()
	r.Region = &sampled
	r.Face = outcome.Face
	for _, c := range outcome.Palette {
		r.Palette = append(r.Palette, c.Hex())
	}
	if products != nil {
		r.Products = products
	}
	return r
}

package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/image"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/extension"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// InstructionsData is everything the printable redemption leaflet shows.
// SampleVoucherPNG, when set, is embedded so the supermarket staff see what
// a scannable voucher looks like.
type InstructionsData struct {
	ProgramTitle string
	Currency     string
	Amount       string
	HelpDeskLine string

	Steps []string

	SampleVoucherPNG []byte
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateVoucherInstructions(ctx context.Context, data InstructionsData) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(25,
		text.NewCol(12, "How to redeem your voucher", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(20,
		col.New(12).Add(
			text.New("Program: "+data.ProgramTitle, props.Text{Top: 0}),
			text.New(fmt.Sprintf("Voucher value: %s %s", data.Currency, data.Amount), props.Text{Top: 5}),
		),
	)

	for i, step := range data.Steps {
		m.AddRow(12,
			text.NewCol(1, fmt.Sprintf("%d.", i+1), props.Text{
				Size:  11,
				Style: fontstyle.Bold,
				Align: align.Right,
			}),
			text.NewCol(11, step, props.Text{Size: 11, Left: 2}),
		)
	}

	if len(data.SampleVoucherPNG) > 0 {
		m.AddRow(15,
			text.NewCol(12, "Example voucher", props.Text{
				Size:  12,
				Style: fontstyle.Bold,
				Top:   5,
			}),
		)
		m.AddRow(60,
			image.NewFromBytesCol(12, data.SampleVoucherPNG, extension.Png, props.Rect{
				Center:  true,
				Percent: 90,
			}),
		)
	}

	if data.HelpDeskLine != "" {
		m.AddRow(20,
			text.NewCol(12, data.HelpDeskLine, props.Text{
				Size: 9,
				Top:  8,
			}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}

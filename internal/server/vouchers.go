package server

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/reliefops/disburse/internal/imagecode"
	"github.com/reliefops/disburse/internal/providers/pdf"
)

func (s *Server) GetVoucherImage(c *gin.Context) {
	paymentNr, err := strconv.Atoi(c.Param("payment"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	png, err := s.paymentSvc.ExportVoucherImage(
		c.Request.Context(),
		c.Param("referenceId"),
		paymentNr,
		requestScope(c),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}

func (s *Server) GetVoucherBalance(c *gin.Context) {
	paymentNr, err := strconv.Atoi(c.Param("payment"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	balance, err := s.paymentSvc.VoucherBalance(
		c.Request.Context(),
		c.Param("referenceId"),
		paymentNr,
		requestScope(c),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

var redemptionSteps = []string{
	"Bring this voucher to a participating supermarket.",
	"Show the barcode to the cashier before paying.",
	"The cashier scans the barcode and asks for the PIN below it.",
	"The voucher value is deducted from your purchase. Unused value stays on the voucher.",
}

func (s *Server) GetVoucherInstructions(c *gin.Context) {
	programID, err := strconv.ParseInt(c.Param("programId"), 10, 64)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	program, err := s.programSvc.Get(c.Request.Context(), programID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// Example barcode only; any real voucher uses its own code and PIN.
	samplePNG, err := imagecode.Render("0000000000", "000000")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	reader, err := s.pdfSvc.GenerateVoucherInstructions(c.Request.Context(), pdf.InstructionsData{
		ProgramTitle:     program.Title,
		Currency:         program.Currency,
		Amount:           fmt.Sprintf("%.2f", program.DefaultPaymentAmount),
		Steps:            redemptionSteps,
		SampleVoucherPNG: samplePNG,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	doc, err := io.ReadAll(reader)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `inline; filename="voucher-instructions.pdf"`)
	c.Data(http.StatusOK, "application/pdf", doc)
}

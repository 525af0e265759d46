package pipeline

import (
	"context"
	"image"
	"io"
	"log/slog"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zuneid-derdiwala/inventory-management-sub001/internal/decode"
	"github.com/zuneid-derdiwala/inventory-management-sub001/internal/extract"
	"github.com/zuneid-derdiwala/inventory-management-sub001/internal/validate"
)

func TestPipeline(t *testing.T) {
	// Disable logging during tests
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	RegisterFailHandler(Fail)
	RunSpecs(t, "Pipeline Suite")
}

// fakeBarcode returns queued payloads, one per call, recording each call.
type fakeBarcode struct {
	queue []*decode.DecodedPayload
	calls int
}

func (f *fakeBarcode) DecodeBarcode(ctx context.Context, img image.Image) (*decode.DecodedPayload, error) {
	f.calls++
	if len(f.queue) == 0 {
		return nil, decode.ErrNoResult
	}
	p := f.queue[0]
	f.queue = f.queue[1:]
	if p == nil {
		return nil, decode.ErrNoResult
	}
	return p, nil
}

type fakeMatrix struct {
	queue []*decode.DecodedPayload
	calls int
}

func (f *fakeMatrix) DecodeMatrix(ctx context.Context, img image.Image) (*decode.DecodedPayload, error) {
	f.calls++
	if len(f.queue) == 0 {
		return nil, decode.ErrNoResult
	}
	p := f.queue[0]
	f.queue = f.queue[1:]
	if p == nil {
		return nil, decode.ErrNoResult
	}
	return p, nil
}

type fakeOCR struct {
	queue  []*decode.DecodedPayload
	calls  int
	closed bool
}

func (f *fakeOCR) RecognizeText(ctx context.Context, img image.Image) (*decode.DecodedPayload, error) {
	f.calls++
	if len(f.queue) == 0 {
		return nil, decode.ErrNoResult
	}
	p := f.queue[0]
	f.queue = f.queue[1:]
	if p == nil {
		return nil, decode.ErrNoResult
	}
	return p, nil
}

func (f *fakeOCR) Close() error {
	f.closed = true
	return nil
}

func barcodePayload(text string) *decode.DecodedPayload {
	return &decode.DecodedPayload{Text: text, Method: decode.MethodBarcode1D}
}

func ocrPayload(text string) *decode.DecodedPayload {
	return &decode.DecodedPayload{Text: text, Method: decode.MethodOCR}
}

func matrixPayload(text string) *decode.DecodedPayload {
	return &decode.DecodedPayload{Text: text, Method: decode.MethodRawMatrix}
}

var _ = Describe("Detect", func() {
	var (
		barcode *fakeBarcode
		matrix  *fakeMatrix
		ocr     *fakeOCR
		p       *Pipeline
		img     image.Image
		result  *Result
		err     error
	)

	BeforeEach(func() {
		barcode = &fakeBarcode{}
		matrix = &fakeMatrix{}
		ocr = &fakeOCR{}
		img = image.NewRGBA(image.Rect(0, 0, 8, 8))
	})

	JustBeforeEach(func() {
		p = New(decode.NewAdapter(barcode, matrix, ocr), nil)
		result, err = p.Detect(context.Background(), img)
	})

	When("the first barcode attempt decodes a valid IMEI", func() {
		BeforeEach(func() {
			barcode.queue = []*decode.DecodedPayload{barcodePayload("354626223546262")}
		})

		It("accepts it", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Identifier).To(Equal("354626223546262"))
			Expect(result.Kind).To(Equal(extract.KindIMEI))
			Expect(result.Method).To(Equal(decode.MethodBarcode1D))
			Expect(result.Fallback).To(BeFalse())
		})

		It("short-circuits the remaining stages", func() {
			Expect(barcode.calls).To(Equal(1))
			Expect(ocr.calls).To(BeZero())
			Expect(matrix.calls).To(BeZero())
		})

		It("journals the single attempt", func() {
			Expect(result.Attempts).To(HaveLen(1))
			Expect(result.Attempts[0].Stage).To(Equal("barcode"))
			Expect(result.Attempts[0].Decoded).To(BeTrue())
		})
	})

	When("only the OCR stage finds the label", func() {
		BeforeEach(func() {
			ocr.queue = []*decode.DecodedPayload{ocrPayload("IMEI1: 354626223546262")}
		})

		It("accepts the labeled identifier", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Identifier).To(Equal("354626223546262"))
			Expect(result.Origin).To(Equal(extract.OriginLabeled))
			Expect(result.Method).To(Equal(decode.MethodOCR))
		})

		It("records the failed barcode attempt before the OCR attempt", func() {
			Expect(result.Attempts).To(HaveLen(2))
			Expect(result.Attempts[0].Stage).To(Equal("barcode"))
			Expect(result.Attempts[0].Decoded).To(BeFalse())
			Expect(result.Attempts[1].Stage).To(Equal("ocr"))
			Expect(result.Attempts[1].Decoded).To(BeTrue())
		})
	})

	When("nothing decodes at any stage", func() {
		It("reports no identifier found", func() {
			Expect(err).To(MatchError(ErrNoIdentifierFound))
			Expect(result).To(BeNil())
		})

		It("runs every stage in the escalation", func() {
			// barcode: original, contrast, resized; matrix likewise;
			// OCR: original and final prepared pass.
			Expect(barcode.calls).To(Equal(3))
			Expect(matrix.calls).To(Equal(3))
			Expect(ocr.calls).To(Equal(2))
		})
	})

	When("a later stage salvages the identifier", func() {
		BeforeEach(func() {
			// Nothing until the contrast-enhanced matrix pass.
			matrix.queue = []*decode.DecodedPayload{nil, matrixPayload("867530421234566")}
		})

		It("reports the salvaged identifier with its method", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Identifier).To(Equal("867530421234566"))
			Expect(result.Method).To(Equal(decode.MethodRawMatrix))
		})

		It("stops after the accepting stage", func() {
			Expect(result.Attempts).To(HaveLen(5))
			Expect(result.Attempts[4].Stage).To(Equal("raw-matrix-contrast"))
		})
	})

	When("the only IMEI candidate fails its checksum", func() {
		BeforeEach(func() {
			barcode.queue = []*decode.DecodedPayload{barcodePayload("IMEI1: 354626223546261")}
		})

		It("falls back to reporting it anyway", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Identifier).To(Equal("354626223546261"))
			Expect(result.Fallback).To(BeTrue())
			Expect(result.Reason).To(Equal(validate.ReasonBadChecksum))
		})
	})

	When("only a mobile-shaped number is present", func() {
		BeforeEach(func() {
			ocr.queue = []*decode.DecodedPayload{ocrPayload("contact 9876543210")}
		})

		It("reports the mobile number unvalidated", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Identifier).To(Equal("9876543210"))
			Expect(result.Kind).To(Equal(extract.KindMobile))
			Expect(result.Fallback).To(BeFalse())
		})
	})

	When("an invalid IMEI candidate and a mobile number are both present", func() {
		BeforeEach(func() {
			ocr.queue = []*decode.DecodedPayload{ocrPayload("IMEI: 354626223546261 contact 9876543210")}
		})

		It("prefers the IMEI fallback over the mobile number", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Identifier).To(Equal("354626223546261"))
			Expect(result.Fallback).To(BeTrue())
		})
	})

	When("the label prints both identifiers", func() {
		BeforeEach(func() {
			ocr.queue = []*decode.DecodedPayload{ocrPayload("IMEI2: 867530421234566\nIMEI1: 354626223546262")}
		})

		It("prefers the primary SIM identifier", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Identifier).To(Equal("354626223546262"))
		})
	})

	When("the decoded payload is a known product barcode", func() {
		BeforeEach(func() {
			barcode.queue = []*decode.DecodedPayload{barcodePayload("6932204509475")}
		})

		It("reports no identifier found", func() {
			Expect(err).To(MatchError(ErrNoIdentifierFound))
		})
	})

	When("the label carries a 19-digit extended identifier", func() {
		// Longer than the 15-digit rule allows; it surfaces through the
		// mobile-number path rather than as an IMEI.
		BeforeEach(func() {
			ocr.queue = []*decode.DecodedPayload{ocrPayload("IMEI: 3251600990000013254 2\nSERIAL: 5AAS58133XDYT95")}
		})

		It("resolves the full value", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Identifier).To(Equal("3251600990000013254"))
			Expect(result.Kind).To(Equal(extract.KindMobile))
		})
	})

	When("the full sticker text is decoded at once", func() {
		BeforeEach(func() {
			barcode.queue = []*decode.DecodedPayload{barcodePayload("IMEI(MEID) and S/N\nIMEI1\n354626223546262 / 19")}
		})

		It("resolves the primary identifier", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Identifier).To(Equal("354626223546262"))
		})
	})

	When("the context is already cancelled", func() {
		It("returns the context error", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, detectErr := p.Detect(ctx, img)
			Expect(detectErr).To(MatchError(context.Canceled))
		})
	})

	When("candidates accumulate across stages", func() {
		BeforeEach(func() {
			// The first stage yields only an invalid IMEI; a later stage
			// yields a valid one.
			barcode.queue = []*decode.DecodedPayload{barcodePayload("IMEI: 354626223546261")}
			ocr.queue = []*decode.DecodedPayload{ocrPayload("IMEI1: 354626223546262")}
		})

		It("accepts the first valid candidate once it appears", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Identifier).To(Equal("354626223546262"))
			Expect(result.Fallback).To(BeFalse())
		})
	})
})

var _ = Describe("Resolve", func() {
	var (
		imeis   []Candidate
		mobiles []Candidate
		result  *Result
		err     error
	)

	BeforeEach(func() {
		imeis = nil
		mobiles = nil
	})

	JustBeforeEach(func() {
		result, err = Resolve(imeis, mobiles, nil)
	})

	When("a valid IMEI is not first in the list", func() {
		BeforeEach(func() {
			imeis = []Candidate{
				{Value: "354626223546261", Kind: extract.KindIMEI, Origin: extract.OriginLabeled},
				{Value: "354626223546262", Kind: extract.KindIMEI, Origin: extract.OriginUnlabeled},
			}
		})

		It("skips invalid candidates to reach it", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Identifier).To(Equal("354626223546262"))
			Expect(result.Fallback).To(BeFalse())
		})
	})

	When("no IMEI validates", func() {
		BeforeEach(func() {
			imeis = []Candidate{
				{Value: "354626223546261", Kind: extract.KindIMEI, Origin: extract.OriginLabeled},
				{Value: "867530421234565", Kind: extract.KindIMEI, Origin: extract.OriginUnlabeled},
			}
			mobiles = []Candidate{{Value: "9876543210", Kind: extract.KindMobile, Origin: extract.OriginUnlabeled}}
		})

		It("falls back to the first IMEI candidate with its reject reason", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Identifier).To(Equal("354626223546261"))
			Expect(result.Fallback).To(BeTrue())
			Expect(result.Reason).To(Equal(validate.ReasonBadChecksum))
		})
	})

	When("only mobiles were found", func() {
		BeforeEach(func() {
			mobiles = []Candidate{
				{Value: "9876543210", Kind: extract.KindMobile, Origin: extract.OriginUnlabeled, Method: decode.MethodOCR},
				{Value: "9123456789", Kind: extract.KindMobile, Origin: extract.OriginUnlabeled},
			}
		})

		It("reports the first mobile", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Identifier).To(Equal("9876543210"))
			Expect(result.Method).To(Equal(decode.MethodOCR))
			Expect(result.Fallback).To(BeFalse())
		})
	})

	When("there are no candidates", func() {
		It("reports no identifier found", func() {
			Expect(err).To(MatchError(ErrNoIdentifierFound))
			Expect(result).To(BeNil())
		})
	})
})

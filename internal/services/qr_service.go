package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/png"
	"log"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"
)

const qrCacheTTL = 24 * time.Hour

// PaymentInstructions tell a user how to pay the paybill directly and then
// confirm with the code from the SMS.
type PaymentInstructions struct {
	PayBill          string   `json:"paybill"`
	AccountReference string   `json:"accountReference"`
	Amount           int64    `json:"amount"`
	Steps            []string `json:"steps"`
	QRImage          string   `json:"qrImage"`
}

type QRService struct {
	redis         *redis.Client
	shortCode     string
	defaultAmount int64
}

func NewQRService(redis *redis.Client, shortCode string, defaultAmount int64) *QRService {
	return &QRService{
		redis:         redis,
		shortCode:     shortCode,
		defaultAmount: defaultAmount,
	}
}

func (s *QRService) GetInstructions(ctx context.Context, accountReference string) (*PaymentInstructions, error) {
	reference := strings.TrimSpace(accountReference)
	if reference == "" {
		return nil, &ValidationError{Field: "reference", Message: "is required"}
	}
	if len(reference) > maxAccountReferenceLen {
		return nil, &ValidationError{Field: "reference", Message: fmt.Sprintf("must be at most %d characters", maxAccountReferenceLen)}
	}

	payload := s.qrPayload(reference)
	image, err := s.cachedQR(ctx, payload)
	if err != nil {
		return nil, err
	}

	return &PaymentInstructions{
		PayBill:          s.shortCode,
		AccountReference: reference,
		Amount:           s.defaultAmount,
		Steps: []string{
			"Open M-PESA and select Lipa na M-PESA, then Pay Bill",
			fmt.Sprintf("Enter business number %s", s.shortCode),
			fmt.Sprintf("Enter account number %s", reference),
			fmt.Sprintf("Enter amount %d and your M-PESA PIN", s.defaultAmount),
			"Submit the 10 character code from the confirmation SMS",
		},
		QRImage: image,
	}, nil
}

func (s *QRService) qrPayload(reference string) string {
	return fmt.Sprintf("PAYBILL:%s;ACCOUNT:%s;AMOUNT:%d", s.shortCode, reference, s.defaultAmount)
}

// cachedQR returns the base64 PNG for payload, rendering it on a cache miss.
// Redis is optional.
func (s *QRService) cachedQR(ctx context.Context, payload string) (string, error) {
	key := fmt.Sprintf("mpesa:qr:%s", payload)

	if s.redis != nil {
		cached, err := s.redis.Get(ctx, key).Result()
		if err == nil {
			return cached, nil
		}
		if err != redis.Nil {
			log.Printf("[QR] Cache read failed: %v", err)
		}
	}

	image, err := renderQR(payload)
	if err != nil {
		return "", err
	}

	if s.redis != nil {
		if err := s.redis.Set(ctx, key, image, qrCacheTTL).Err(); err != nil {
			log.Printf("[QR] Cache write failed: %v", err)
		}
	}
	return image, nil
}

func renderQR(payload string) (string, error) {
	qr, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

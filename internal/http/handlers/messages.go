package handlers

import (
	"fmt"

	"cartoonify/internal/domain"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys double as the English text.
const (
	msgRequestNotFound   = "Request not found"
	msgAlreadyInState    = "Request is already %s"
	msgInvalidState      = "Request cannot be processed in its current state"
	msgProcessingStarted = "Processing started"
	msgPhotoRequired     = "uploaded_photo is required"
	msgPhotoTooLarge     = "Photo file size must be less than %s"
	msgIllusTooLarge     = "Illustration file size must be less than %s"
	msgUnsupportedType   = "Only JPEG and PNG images are allowed"
	msgInvalidForm       = "Invalid multipart payload"
	msgUndecodable       = "The image could not be decoded"
	msgProcessingFailed  = "The request could not be processed right now"
	msgInternal          = "Internal server error"
	msgResultNotReady    = "Result is not ready"
	msgInvalidPosition   = "Invalid position"
	msgInvalidScale      = "Scale must be greater than 0 and at most 10"
	msgNoFace            = domain.NoFaceMessage
)

var messages = buildCatalog()

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	id := map[string]string{
		msgRequestNotFound:   "Permintaan tidak ditemukan",
		msgAlreadyInState:    "Permintaan sudah %s",
		msgInvalidState:      "Permintaan tidak dapat diproses dalam status saat ini",
		msgProcessingStarted: "Pemrosesan dimulai",
		msgPhotoRequired:     "uploaded_photo wajib diisi",
		msgPhotoTooLarge:     "Ukuran foto harus kurang dari %s",
		msgIllusTooLarge:     "Ukuran ilustrasi harus kurang dari %s",
		msgUnsupportedType:   "Hanya gambar JPEG dan PNG yang diperbolehkan",
		msgInvalidForm:       "Payload multipart tidak valid",
		msgUndecodable:       "Gambar tidak dapat dibaca",
		msgProcessingFailed:  "Permintaan tidak dapat diproses saat ini",
		msgInternal:          "Terjadi kesalahan pada server",
		msgResultNotReady:    "Hasil belum tersedia",
		msgInvalidPosition:   "Posisi tidak valid",
		msgInvalidScale:      "Skala harus lebih dari 0 dan paling besar 10",
		msgNoFace:            "Tidak ada wajah yang terdeteksi pada foto. Unggah foto yang jelas dengan wajah yang terlihat.",
	}
	for key, text := range id {
		_ = b.SetString(language.English, key, key)
		_ = b.SetString(language.Indonesian, key, text)
	}
	return b
}

// humanSize renders an upload limit the way the messages expect it.
func humanSize(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%dMB", n>>20)
	case n >= 1<<10 && n%(1<<10) == 0:
		return fmt.Sprintf("%dKB", n>>10)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

func printer(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag, message.Catalog(messages))
}

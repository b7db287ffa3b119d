// Package insightface spricht einen entfernten InsightFace-REST-Dienst an, der
// Gesichter erkennt und Embeddings berechnet.
package insightface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"faceauth-go/internal/faceauth"
	"faceauth-go/internal/imaging"

	log "github.com/sirupsen/logrus"
)

// Log-Felder für InsightFace-Komponente definieren
var logFields = log.Fields{
	"component": "insightface",
}

// DefaultTimeout für Anfragen an den Dienst
const DefaultTimeout = 10 * time.Second

// APIClient implementiert die Kommunikation mit dem InsightFace-Dienst
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// apiInfoResponse enthält Informationen über den InsightFace-Dienst
type apiInfoResponse struct {
	Status    string   `json:"status"`
	Version   string   `json:"version"`
	Backend   string   `json:"backend"`
	Providers []string `json:"providers"`
}

// apiFace ist ein vom Dienst gemeldetes Gesicht
type apiFace struct {
	BoundingBox []int     `json:"bbox"`
	Confidence  float64   `json:"confidence"`
	Embedding   []float32 `json:"embedding,omitempty"`
}

// apiDetectResponse enthält die Antwort auf eine Gesichtserkennungsanfrage
type apiDetectResponse struct {
	Status      string    `json:"status"`
	FacesCount  int       `json:"faces_count"`
	Faces       []apiFace `json:"faces"`
	ProcessTime float64   `json:"process_time"`
}

// NewAPIClient erstellt einen neuen InsightFace-APIClient
func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Ping prüft, ob der InsightFace-Dienst verfügbar ist
func (c *APIClient) Ping(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/info", nil)
	if err != nil {
		return false, fmt.Errorf("fehler beim Erstellen der Anfrage: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("fehler bei der Verbindung zu InsightFace: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("InsightFace-Dienst ist nicht verfügbar, Status: %d", resp.StatusCode)
	}

	var info apiInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return false, fmt.Errorf("fehler beim Dekodieren der Antwort: %w", err)
	}

	log.WithFields(logFields).Debugf("InsightFace %s (%s) erreichbar", info.Version, info.Backend)
	return info.Status == "ok", nil
}

// DetectFaces sendet eine Anfrage zur Gesichtserkennung an den InsightFace-Dienst
func (c *APIClient) DetectFaces(ctx context.Context, img image.Image, threshold float64, extractEmbedding bool) (*apiDetectResponse, error) {
	imgData, err := imaging.EncodeJPEG(img)
	if err != nil {
		return nil, fmt.Errorf("fehler beim Kodieren des Bildes: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image.jpg")
	if err != nil {
		return nil, fmt.Errorf("fehler beim Erstellen des Formularfeldes: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(imgData)); err != nil {
		return nil, fmt.Errorf("fehler beim Kopieren der Bilddaten: %w", err)
	}

	if err := writer.WriteField("threshold", fmt.Sprintf("%f", threshold)); err != nil {
		return nil, fmt.Errorf("fehler beim Schreiben von threshold: %w", err)
	}
	if err := writer.WriteField("extract_embedding", fmt.Sprintf("%t", extractEmbedding)); err != nil {
		return nil, fmt.Errorf("fehler beim Schreiben von extract_embedding: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("fehler beim Schließen des Formularschreibers: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/detect", body)
	if err != nil {
		return nil, fmt.Errorf("fehler beim Erstellen der Anfrage: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fehler bei der HTTP-Anfrage: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unerwarteter Status: %d, Antwort: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp apiDetectResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("fehler beim Dekodieren der Antwort: %w", err)
	}
	if apiResp.Status != "ok" {
		return nil, fmt.Errorf("API-Fehler: %s", apiResp.Status)
	}

	return &apiResp, nil
}

// Embedder implementiert faceauth.Embedder und faceauth.Detector über den Dienst
type Embedder struct {
	client    *APIClient
	threshold float64
}

var (
	_ faceauth.Embedder = (*Embedder)(nil)
	_ faceauth.Detector = (*Embedder)(nil)
)

// NewEmbedder erstellt einen Embedder. threshold ist die Detektionsschwelle des Dienstes.
func NewEmbedder(client *APIClient, threshold float64) *Embedder {
	return &Embedder{client: client, threshold: threshold}
}

// Variant implementiert faceauth.Extractor
func (e *Embedder) Variant() faceauth.Variant {
	return faceauth.VariantEmbedding
}

// ModelName kennzeichnet Vektoren dieses Dienstes im Katalog
func (e *Embedder) ModelName() string {
	return "insightface@" + e.client.baseURL
}

// Embed liefert das Embedding des ersten vom Dienst gemeldeten Gesichts
func (e *Embedder) Embed(ctx context.Context, img image.Image) (faceauth.Embedding, error) {
	if imaging.IsEmpty(img) {
		return nil, faceauth.ErrEmptyFrame
	}

	resp, err := e.client.DetectFaces(ctx, img, e.threshold, true)
	if err != nil {
		return nil, err
	}

	for _, f := range resp.Faces {
		if len(f.Embedding) > 0 {
			return faceauth.Embedding(f.Embedding), nil
		}
	}
	return nil, faceauth.ErrNoFaceDetected
}

// Detect implementiert faceauth.Detector. bbox ist [x1, y1, x2, y2].
func (e *Embedder) Detect(ctx context.Context, frame image.Image) ([]faceauth.Detection, error) {
	resp, err := e.client.DetectFaces(ctx, frame, e.threshold, false)
	if err != nil {
		return nil, err
	}

	offset := frame.Bounds().Min
	detections := make([]faceauth.Detection, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		if len(f.BoundingBox) != 4 {
			log.WithFields(logFields).Warnf("Ungültige Bounding Box: %v", f.BoundingBox)
			continue
		}
		r := image.Rect(f.BoundingBox[0], f.BoundingBox[1], f.BoundingBox[2], f.BoundingBox[3])
		detections = append(detections, faceauth.Detection{
			Rectangle:  r.Add(offset),
			Confidence: f.Confidence,
		})
	}
	return detections, nil
}

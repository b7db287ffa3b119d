package opencv

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"faceauth-go/config"
	"faceauth-go/internal/faceauth"

	log "github.com/sirupsen/logrus"
	gocv "gocv.io/x/gocv"
)

// Detektionsmethoden
const (
	MethodDNN     = "dnn"     // Caffe res10 SSD Gesichtsnetz
	MethodCascade = "cascade" // Haar-Cascade als Fallback
)

// DNN-Backend- und Target-Namen für die Konfiguration
const (
	BackendDefault  = "default"
	BackendCUDA     = "cuda"
	BackendOpenCV   = "opencv"
	BackendOpenVINO = "openvino"
	TargetCPU       = "cpu"
	TargetCUDA      = "cuda"
	TargetCUDAFP16  = "cuda_fp16"
	TargetOpenCL    = "opencl"
)

// DefaultInputSize ist die Eingabegröße des res10-Netzes
const DefaultInputSize = 300

// Mittelwerte, mit denen das res10-Netz trainiert wurde (BGR)
var res10Mean = gocv.NewScalar(104.0, 177.0, 123.0, 0)

var logFields = log.Fields{
	"component": "opencv",
}

// FaceDetector implementiert faceauth.Detector mit OpenCV
type FaceDetector struct {
	method    string
	net       gocv.Net
	cascade   gocv.CascadeClassifier
	inputSize int
	floor     float64 // Detektionen darunter werden gar nicht erst gemeldet
	mu        sync.Mutex
}

var _ faceauth.Detector = (*FaceDetector)(nil)

// NewFaceDetector lädt das DNN-Modell. Fehlen die Modelldateien, wird auf die
// Haar-Cascade zurückgefallen.
func NewFaceDetector(cfg config.DetectorConfig) (*FaceDetector, error) {
	d := &FaceDetector{
		inputSize: cfg.InputSize,
		floor:     cfg.ConfidenceThreshold,
	}
	if d.inputSize <= 0 {
		d.inputSize = DefaultInputSize
	}

	if fileExists(cfg.ModelPath) && fileExists(cfg.ConfigPath) {
		net := gocv.ReadNet(cfg.ModelPath, cfg.ConfigPath)
		if net.Empty() {
			return nil, fmt.Errorf("konnte DNN-Modell nicht laden: %s", cfg.ModelPath)
		}

		backend, target := parseBackend(cfg.Backend, cfg.Target)
		if err := net.SetPreferableBackend(backend); err != nil {
			log.WithFields(logFields).Warnf("Backend %s nicht verfügbar: %v", cfg.Backend, err)
		}
		if err := net.SetPreferableTarget(target); err != nil {
			log.WithFields(logFields).Warnf("Target %s nicht verfügbar: %v", cfg.Target, err)
		}

		d.method = MethodDNN
		d.net = net
		log.WithFields(logFields).Infof("DNN-Gesichtsdetektor geladen (%s, Backend %s, Target %s)",
			cfg.ModelPath, cfg.Backend, cfg.Target)
		return d, nil
	}

	log.WithFields(logFields).Warnf("DNN-Modelldateien nicht gefunden: %s oder %s", cfg.ModelPath, cfg.ConfigPath)
	log.WithFields(logFields).Warn("Falle zurück auf Haar-Cascade")

	if !fileExists(cfg.CascadePath) {
		return nil, fmt.Errorf("weder DNN-Modell noch Haar-Cascade gefunden (%s)", cfg.CascadePath)
	}
	cascade := gocv.NewCascadeClassifier()
	if !cascade.Load(cfg.CascadePath) {
		cascade.Close()
		return nil, fmt.Errorf("konnte Haar-Cascade nicht laden: %s", cfg.CascadePath)
	}

	d.method = MethodCascade
	d.cascade = cascade
	return d, nil
}

// Method gibt die aktive Detektionsmethode zurück
func (d *FaceDetector) Method() string {
	return d.method
}

// Detect liefert die Gesichter in der Ausgabereihenfolge des Modells
func (d *FaceDetector) Detect(ctx context.Context, frame image.Image) ([]faceauth.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return nil, fmt.Errorf("konnte Bild nicht konvertieren: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, faceauth.ErrEmptyFrame
	}

	// Nativer Zustand von Net und Cascade ist nicht threadsicher
	d.mu.Lock()
	defer d.mu.Unlock()

	offset := frame.Bounds().Min
	var detections []faceauth.Detection
	if d.method == MethodDNN {
		detections = d.detectDNN(mat)
	} else {
		detections = d.detectCascade(mat)
	}

	for i := range detections {
		detections[i].Rectangle = detections[i].Rectangle.Add(offset)
	}

	log.WithFields(logFields).Debugf("%d Gesichter erkannt (%s)", len(detections), d.method)
	return detections, nil
}

func (d *FaceDetector) detectDNN(mat gocv.Mat) []faceauth.Detection {
	width, height := float32(mat.Cols()), float32(mat.Rows())

	blob := gocv.BlobFromImage(
		mat,
		1.0,
		image.Pt(d.inputSize, d.inputSize),
		res10Mean,
		false, // ImageToMatRGB liefert bereits BGR
		false,
	)
	defer blob.Close()

	d.net.SetInput(blob, "")
	prob := d.net.Forward("")
	defer prob.Close()

	// SSD-Ausgabe [1, 1, N, 7]: [img_id, class_id, confidence, left, top, right, bottom]
	var detections []faceauth.Detection
	for i := 0; i+6 < prob.Total(); i += 7 {
		confidence := prob.GetFloatAt(0, i+2)
		if float64(confidence) < d.floor {
			continue
		}

		rect := image.Rect(
			int(prob.GetFloatAt(0, i+3)*width),
			int(prob.GetFloatAt(0, i+4)*height),
			int(prob.GetFloatAt(0, i+5)*width),
			int(prob.GetFloatAt(0, i+6)*height),
		)
		detections = append(detections, faceauth.Detection{
			Rectangle:  rect,
			Confidence: float64(confidence),
		})
	}
	return detections
}

func (d *FaceDetector) detectCascade(mat gocv.Mat) []faceauth.Detection {
	// Die Cascade liefert keine Konfidenz, jeder Treffer gilt als sicher
	rects := d.cascade.DetectMultiScale(mat)
	detections := make([]faceauth.Detection, 0, len(rects))
	for _, r := range rects {
		detections = append(detections, faceauth.Detection{Rectangle: r, Confidence: 1.0})
	}
	return detections
}

// Close gibt die nativen Ressourcen frei
func (d *FaceDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.method {
	case MethodDNN:
		return d.net.Close()
	case MethodCascade:
		return d.cascade.Close()
	}
	return nil
}

// parseBackend übersetzt die Konfigurationswerte in gocv-Konstanten
func parseBackend(backend, target string) (gocv.NetBackendType, gocv.NetTargetType) {
	b := gocv.NetBackendDefault
	switch backend {
	case "", BackendDefault:
	case BackendCUDA:
		b = gocv.NetBackendCUDA
	case BackendOpenCV:
		b = gocv.NetBackendOpenCV
	case BackendOpenVINO:
		b = gocv.NetBackendOpenVINO
	default:
		log.WithFields(logFields).Warnf("Unbekanntes Backend '%s' konfiguriert, verwende Standard", backend)
	}

	t := gocv.NetTargetCPU
	switch target {
	case "", TargetCPU:
	case TargetCUDA:
		t = gocv.NetTargetCUDA
	case TargetCUDAFP16:
		t = gocv.NetTargetCUDAFP16
	case TargetOpenCL:
		t = gocv.NetTargetFP32
	default:
		log.WithFields(logFields).Warnf("Unbekanntes Target '%s' konfiguriert, verwende CPU", target)
	}

	return b, t
}

// fileExists prüft, ob eine Datei existiert
func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

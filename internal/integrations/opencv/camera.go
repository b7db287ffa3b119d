package opencv

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"sync"
	"time"

	"faceauth-go/config"
	"faceauth-go/internal/faceauth"

	log "github.com/sirupsen/logrus"
	gocv "gocv.io/x/gocv"
)

// Camera implementiert faceauth.FrameSource über gocv.VideoCapture
type Camera struct {
	capture *gocv.VideoCapture
	timeout time.Duration
	mu      sync.Mutex // VideoCapture erlaubt nur einen Leser
}

var _ faceauth.FrameSource = (*Camera)(nil)

// OpenCamera öffnet ein Gerät (Index wie "0") oder eine URL/Datei
func OpenCamera(cfg config.CameraConfig) (*Camera, error) {
	var device any = cfg.Device
	if id, err := strconv.Atoi(cfg.Device); err == nil {
		device = id
	}

	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("konnte Kamera %s nicht öffnen: %w", cfg.Device, err)
	}

	if cfg.Width > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}

	log.WithFields(logFields).Infof("Kamera %s geöffnet", cfg.Device)
	return &Camera{capture: capture, timeout: cfg.ReadTimeout}, nil
}

type frameResult struct {
	img image.Image
	err error
}

// Read liefert ein Bild. Ein leeres Bild wird einmal erneut gelesen.
// Liefert die Kamera nicht innerhalb des Timeouts, wird ErrReadTimeout gemeldet.
func (c *Camera) Read(ctx context.Context) (image.Image, error) {
	resultCh := make(chan frameResult, 1)
	go func() {
		img, err := c.readWithRetry()
		resultCh <- frameResult{img: img, err: err}
	}()

	var timeout <-chan time.Time
	if c.timeout > 0 {
		timer := time.NewTimer(c.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case res := <-resultCh:
		return res.img, res.err
	case <-timeout:
		return nil, faceauth.ErrReadTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Camera) readWithRetry() (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	mat := gocv.NewMat()
	defer mat.Close()

	for attempt := 0; attempt < 2; attempt++ {
		if ok := c.capture.Read(&mat); ok && !mat.Empty() {
			img, err := mat.ToImage()
			if err != nil {
				return nil, fmt.Errorf("konnte Kamerabild nicht konvertieren: %w", err)
			}
			return img, nil
		}
		log.WithFields(logFields).Debug("Leeres Kamerabild, erneuter Versuch")
	}
	return nil, faceauth.ErrEmptyFrame
}

// Close schließt die Kamera
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capture.Close()
}

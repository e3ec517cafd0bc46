package sitemeta

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/image/draw"
)

const (
	maxImageWidth = 1200 // og:image recommended width
	jpegQuality   = 85
	maxUploadSize = 10 << 20 // 10MB
)

// Image describes an uploaded share image.
type Image struct {
	Filename   string    `json:"filename"`
	URL        string    `json:"url"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// processImage decodes an image, scales it down to maxImageWidth and
// re-encodes it as JPEG.
func processImage(src io.Reader) ([]byte, int, int, error) {
	img, _, err := image.Decode(src)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > maxImageWidth {
		newH := h * maxImageWidth / w
		dst := image.NewRGBA(image.Rect(0, 0, maxImageWidth, newH))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
		w, h = maxImageWidth, newH
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, 0, 0, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), w, h, nil
}

// uniqueFilename slugifies name and appends a counter until it does not
// collide with a file in dir.
func uniqueFilename(dir, name string) string {
	base := Slugify(strings.TrimSuffix(name, filepath.Ext(name)))
	if base == "" {
		base = "image"
	}
	candidate := base + ".jpg"
	for n := 2; ; n++ {
		if _, err := os.Stat(filepath.Join(dir, candidate)); os.IsNotExist(err) {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d.jpg", base, n)
	}
}

func (a *App) handleImageUpload(c echo.Context) error {
	file, err := c.FormFile("image")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "no image file provided")
	}
	if file.Size > maxUploadSize {
		return echo.NewHTTPError(http.StatusBadRequest, "file too large (max 10MB)")
	}
	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	data, w, h, err := processImage(src)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid image: "+err.Error())
	}

	dir := a.Config().UploadsDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create uploads dir: %w", err)
	}
	name := uniqueFilename(dir, file.Filename)
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	return c.JSON(http.StatusCreated, Image{
		Filename:   name,
		URL:        "/uploads/" + name,
		Width:      w,
		Height:     h,
		Size:       int64(len(data)),
		UploadedAt: time.Now().UTC(),
	})
}

func (a *App) handleImageDelete(c echo.Context) error {
	name := filepath.Base(c.Param("filename"))
	if name == "." || name == "/" || strings.HasPrefix(name, ".") {
		return echo.NewHTTPError(http.StatusBadRequest, "filename required")
	}
	err := os.Remove(filepath.Join(a.Config().UploadsDir, name))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *App) handleImageList(c echo.Context) error {
	images, err := listImages(a.Config().UploadsDir)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, images)
}

// listImages returns the uploads in dir, newest first.
func listImages(dir string) ([]Image, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []Image{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read uploads dir: %w", err)
	}
	images := []Image{}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		img := Image{
			Filename:   e.Name(),
			URL:        "/uploads/" + e.Name(),
			Size:       info.Size(),
			UploadedAt: info.ModTime().UTC(),
		}
		if f, err := os.Open(filepath.Join(dir, e.Name())); err == nil {
			if cfg, _, err := image.DecodeConfig(f); err == nil {
				img.Width, img.Height = cfg.Width, cfg.Height
			}
			f.Close()
		}
		images = append(images, img)
	}
	sort.Slice(images, func(i, j int) bool { return images[i].UploadedAt.After(images[j].UploadedAt) })
	return images, nil
}

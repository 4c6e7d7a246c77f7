package api

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/loan-rate-crawler/internal/loan"
	"github.com/JakeFAU/loan-rate-crawler/internal/metrics"
)

const (
	defaultUploadField    = "csv_file"
	defaultUploadMaxBytes = 32 << 20
	defaultUploadType     = "text/csv"
	multipartMemory       = 8 << 20
)

//go:embed templates/*.html
var templateFS embed.FS

func parseTemplates() (*template.Template, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return tmpl, nil
}

type uploadFormView struct {
	FieldName string
	Accept    string
	Error     string
}

type uploadSuccessView struct {
	Filename string
	Key      string
	Size     int64
	SHA256   string
}

func (s *Server) uploadForm(w http.ResponseWriter, _ *http.Request) {
	s.renderForm(w, http.StatusOK, "")
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	u := s.opts.Upload
	if u.Blobs == nil || u.IDs == nil || u.Hasher == nil {
		metrics.ObserveUpload(metrics.UploadStorageFailed, 0)
		s.renderForm(w, http.StatusServiceUnavailable, "Uploads are not available right now.")
		return
	}
	logger := s.logger.With(zap.String("request_id", requestID(r.Context())))

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes())
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.reject(w, http.StatusRequestEntityTooLarge, "File is too large.")
			return
		}
		s.reject(w, http.StatusBadRequest, "Could not read the upload form.")
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			logger.Warn("multipart cleanup failed", zap.Error(err))
		}
	}()

	file, header, err := r.FormFile(s.fieldName())
	if err != nil {
		s.reject(w, http.StatusBadRequest, "No file selected.")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		s.reject(w, http.StatusBadRequest, "No file selected.")
		return
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !slices.Contains(s.allowedExtensions(), ext) {
		s.reject(w, http.StatusBadRequest, fmt.Sprintf("Only %s files are accepted.", strings.Join(s.allowedExtensions(), ", ")))
		return
	}
	if header.Size == 0 {
		s.reject(w, http.StatusBadRequest, "The selected file is empty.")
		return
	}

	id, err := u.IDs.NewID()
	if err != nil {
		logger.Error("generate upload name", zap.Error(err))
		metrics.ObserveUpload(metrics.UploadStorageFailed, 0)
		s.renderForm(w, http.StatusInternalServerError, "Could not store the file.")
		return
	}
	filename := id + ext
	key := path.Join(u.Prefix, filename)
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = defaultUploadType
	}

	digest := u.Hasher.NewDigest()
	uri, err := u.Blobs.PutObject(r.Context(), key, contentType, io.TeeReader(file, digest))
	if err != nil {
		logger.Error("store upload", zap.String("key", key), zap.Error(err))
		metrics.ObserveUpload(metrics.UploadStorageFailed, 0)
		s.renderForm(w, http.StatusInternalServerError, "Could not store the file.")
		return
	}
	metrics.ObserveUpload(metrics.UploadStored, digest.Size())
	logger.Info("upload stored",
		zap.String("key", key),
		zap.String("uri", uri),
		zap.Int64("size", digest.Size()),
		zap.String("sha256", digest.Hex()),
	)

	if u.Publisher != nil {
		event := loan.ObjectStored{
			Key:         key,
			URI:         uri,
			ContentType: contentType,
			Size:        digest.Size(),
			SHA256:      digest.Hex(),
		}
		if _, err := u.Publisher.Publish(r.Context(), u.Topic, event); err != nil {
			logger.Warn("publish upload notification", zap.String("key", key), zap.Error(err))
		}
	}

	s.render(w, http.StatusOK, "success.html", uploadSuccessView{
		Filename: filename,
		Key:      key,
		Size:     digest.Size(),
		SHA256:   digest.Hex(),
	})
}

func (s *Server) reject(w http.ResponseWriter, status int, msg string) {
	metrics.ObserveUpload(metrics.UploadRejected, 0)
	s.renderForm(w, status, msg)
}

func (s *Server) renderForm(w http.ResponseWriter, status int, errMsg string) {
	s.render(w, status, "upload.html", uploadFormView{
		FieldName: s.fieldName(),
		Accept:    strings.Join(s.allowedExtensions(), ","),
		Error:     errMsg,
	})
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("render template failed", zap.String("template", name), zap.Error(err))
	}
}

func (s *Server) fieldName() string {
	if s.opts.Upload.FieldName == "" {
		return defaultUploadField
	}
	return s.opts.Upload.FieldName
}

func (s *Server) allowedExtensions() []string {
	if len(s.opts.Upload.AllowedExtensions) == 0 {
		return []string{".csv"}
	}
	return s.opts.Upload.AllowedExtensions
}

func (s *Server) maxUploadBytes() int64 {
	if s.opts.Upload.MaxBytes <= 0 {
		return defaultUploadMaxBytes
	}
	return s.opts.Upload.MaxBytes
}

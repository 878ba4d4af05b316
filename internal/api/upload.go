package api

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/npezzotti/go-dm/internal/apperr"
	"github.com/npezzotti/go-dm/internal/storage"
	"github.com/npezzotti/go-dm/internal/types"
)

const (
	uploadField    = "files"
	maxUploadFiles = 10
	// multipart framing on top of the file bodies
	uploadOverhead = 1 << 20
)

func (s *DMApp) upload(w http.ResponseWriter, r *http.Request) {
	if s.uploads == nil {
		errResp := NewServiceUnavailableError("uploads are not configured")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, ok := CurrentUser(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadFiles*s.maxUploadBytes+uploadOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errResp := NewRequestEntityTooLargeError(storage.ErrTooLarge)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File[uploadField]
	if len(headers) == 0 {
		s.writeError(w, apperr.Validation("no files"))
		return
	}
	if len(headers) > maxUploadFiles {
		s.writeError(w, apperr.Validation("too many files"))
		return
	}

	files := make([]storage.File, 0, len(headers))
	for _, fh := range headers {
		f := storage.File{
			Name: fh.Filename,
			Mime: storage.NormalizeMime(fh.Header.Get("Content-Type")),
			Size: fh.Size,
		}
		if err := s.uploads.Check(f); err != nil {
			s.writeUploadError(w, err)
			return
		}
		files = append(files, f)
	}

	out := make([]types.UploadedFile, 0, len(files))
	for i, fh := range headers {
		uploaded, err := s.uploadPart(r, user.Id, fh, files[i])
		if err != nil {
			s.writeUploadError(w, err)
			return
		}
		out = append(out, uploaded)
	}

	s.writeJson(w, http.StatusOK, out)
}

func (s *DMApp) uploadPart(r *http.Request, userId int, fh *multipart.FileHeader, f storage.File) (types.UploadedFile, error) {
	body, err := fh.Open()
	if err != nil {
		return types.UploadedFile{}, err
	}
	defer body.Close()

	f.Body = body
	return s.uploads.Upload(r.Context(), userId, f)
}

func (s *DMApp) writeUploadError(w http.ResponseWriter, err error) {
	var errResp *ApiError
	switch {
	case errors.Is(err, storage.ErrUnsupportedType):
		errResp = NewUnsupportedMediaTypeError(err)
	case errors.Is(err, storage.ErrTooLarge):
		errResp = NewRequestEntityTooLargeError(err)
	default:
		s.writeError(w, err)
		return
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

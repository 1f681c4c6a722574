package static

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

type formField struct {
	name  string
	value string
	files []string
}

// submit serializes form the way a browser would for the given submitter
// and loads the response into the frame.
func (f *Frame) submit(ctx context.Context, form, submitter *html.Node) error {
	f.page.mu.RLock()
	fields := collectFields(form, submitter, f.files)
	f.page.mu.RUnlock()

	action := htmlquery.SelectAttr(form, "action")
	method := strings.ToUpper(htmlquery.SelectAttr(form, "method"))
	enctype := strings.ToLower(htmlquery.SelectAttr(form, "enctype"))
	if v := htmlquery.SelectAttr(submitter, "formaction"); v != "" {
		action = v
	}
	if method != http.MethodPost {
		method = http.MethodGet
	}

	target, err := f.resolve(action)
	if err != nil {
		return fmt.Errorf("failed to resolve form action %q: %w", action, err)
	}

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case method == http.MethodGet:
		values := url.Values{}
		for _, fld := range fields {
			if fld.files == nil {
				values.Add(fld.name, fld.value)
			}
		}
		u := *target
		u.RawQuery = values.Encode()
		target = &u
	case enctype == "multipart/form-data":
		body, contentType, err = encodeMultipart(fields)
		if err != nil {
			return err
		}
	default:
		values := url.Values{}
		for _, fld := range fields {
			if fld.files == nil {
				values.Add(fld.name, fld.value)
			}
		}
		body = strings.NewReader(values.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := f.page.newRequest(ctx, method, target.String(), body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Referer", f.URL())
	return f.load(ctx, req)
}

func collectFields(form, submitter *html.Node, files map[*html.Node][]string) []formField {
	var fields []formField
	for _, input := range htmlquery.Find(form, ".//input | .//textarea | .//select | .//button") {
		name := htmlquery.SelectAttr(input, "name")
		if name == "" || htmlquery.ExistsAttr(input, "disabled") {
			continue
		}
		tag := strings.ToLower(input.Data)
		inputType := strings.ToLower(htmlquery.SelectAttr(input, "type"))

		switch tag {
		case "button":
			if input == submitter {
				fields = append(fields, formField{name: name, value: htmlquery.SelectAttr(input, "value")})
			}
		case "textarea":
			fields = append(fields, formField{name: name, value: htmlquery.InnerText(input)})
		case "select":
			for _, opt := range htmlquery.Find(input, ".//option[@selected]") {
				value := htmlquery.SelectAttr(opt, "value")
				if value == "" {
					value = htmlquery.InnerText(opt)
				}
				fields = append(fields, formField{name: name, value: value})
			}
		case "input":
			switch inputType {
			case "checkbox", "radio":
				if htmlquery.ExistsAttr(input, "checked") {
					value := htmlquery.SelectAttr(input, "value")
					if value == "" {
						value = "on"
					}
					fields = append(fields, formField{name: name, value: value})
				}
			case "file":
				fields = append(fields, formField{name: name, files: append([]string{}, files[input]...)})
			case "submit", "image":
				if input == submitter {
					fields = append(fields, formField{name: name, value: htmlquery.SelectAttr(input, "value")})
				}
			case "button", "reset":
			default:
				fields = append(fields, formField{name: name, value: htmlquery.SelectAttr(input, "value")})
			}
		}
	}
	return fields
}

func encodeMultipart(fields []formField) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, fld := range fields {
		if fld.files == nil {
			if err := mw.WriteField(fld.name, fld.value); err != nil {
				return nil, "", err
			}
			continue
		}
		for _, path := range fld.files {
			if err := attachFile(mw, fld.name, path); err != nil {
				return nil, "", err
			}
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func attachFile(mw *multipart.Writer, field, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open upload %s: %w", path, err)
	}
	defer src.Close()
	part, err := mw.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, src)
	return err
}

package core

import (
	"bytes"
	"encoding/base64"
	"fmt"
	htmltmpl "html/template"
	"io"
	"io/fs"
	"net/http"
	"net/mail"
	"path"
	"strings"
	texttmpl "text/template"

	"github.com/pkg/errors"
)

type (
	tmplCacheEntry map[string]interface{}    // {ext: *Template}
	tmplCache      map[string]tmplCacheEntry // {name: {tmplCacheEntry}}

	// EmailTemplates holds the parsed `assets/templates/email` templates.
	EmailTemplates struct {
		cache           tmplCache
		appName         string
		frontendBaseURL string
	}

	Attachment struct {
		Content     *bytes.Buffer // base64 encoded
		ContentType string
		Filename    string
	}

	EmailMessage struct {
		To          []mail.Address
		Cc          []mail.Address
		Bcc         []mail.Address
		Subject     string
		BodyStr     string // simple text/plain, non-templated content
		Attachments []Attachment

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	ContextData struct {
		AppName         string
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

var templateFuncs = map[string]interface{}{
	"date":  FormatDate,
	"money": FormatMoney,
}

// ParseEmailTemplates parses every `<name>.txt` and `<name>.gohtml` template found in `dir`,
// each one together with the `_base` template of the same extension.
func ParseEmailTemplates(fsys fs.FS, dir string, conf *Config, logger Logger) *EmailTemplates {
	tmpls := &EmailTemplates{
		cache:           make(tmplCache),
		appName:         conf.AppName,
		frontendBaseURL: conf.FrontendBaseURL,
	}
	strict := conf.Debug || conf.TestMode

	fps, err := fs.Glob(fsys, path.Join(dir, "*"))
	if err != nil {
		logger.Error(fmt.Sprintf("core.ParseEmailTemplates: %v", err), err)
		return tmpls
	}

	for _, fp := range fps {
		fname := path.Base(fp)
		ext := path.Ext(fname)
		if strings.HasPrefix(fname, "_") || !(ext == ".txt" || ext == ".gohtml") {
			continue
		}
		name := strings.TrimSuffix(fname, ext)
		entry, ok := tmpls.cache[name]
		if !ok {
			entry = make(tmplCacheEntry)
			tmpls.cache[name] = entry
		}
		if ext == ".txt" {
			tmpl, err := texttmpl.New("_base.txt").Funcs(templateFuncs).ParseFS(fsys, path.Join(dir, "_base.txt"), fp)
			if err != nil {
				logger.Error(fmt.Sprintf("core.ParseEmailTemplates(%s): %v", fp, err), err)
				continue
			}
			if strict {
				tmpl = tmpl.Option("missingkey=error")
			}
			entry[ext] = tmpl
		} else {
			tmpl, err := htmltmpl.New("_base.gohtml").Funcs(templateFuncs).ParseFS(fsys, path.Join(dir, "_base.gohtml"), fp)
			if err != nil {
				logger.Error(fmt.Sprintf("core.ParseEmailTemplates(%s): %v", fp, err), err)
				continue
			}
			if strict {
				tmpl = tmpl.Option("missingkey=error")
			}
			entry[ext] = tmpl
		}
	}
	return tmpls
}

func (t *EmailTemplates) get(name, ext string) (interface{}, bool) {
	if t == nil {
		return nil, false
	}
	entry, ok := t.cache[name]
	if !ok {
		return nil, false
	}
	tmpl, ok := entry[ext]
	return tmpl, ok
}

func (m *EmailMessage) getContextData(t *EmailTemplates) ContextData {
	cd := ContextData{Data: m.TemplateData}
	if t != nil {
		cd.AppName = t.appName
		cd.FrontendBaseURL = t.frontendBaseURL
	}
	return cd
}

func (m *EmailMessage) renderText(t *EmailTemplates) error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
		return nil
	} else if m.TemplateName == "" {
		return nil
	}

	tmplEntry, ok := t.get(m.TemplateName, ".txt")
	if !ok {
		return nil
	}
	tmpl, ok := tmplEntry.(*texttmpl.Template)
	if !ok {
		return nil
	}

	var buff bytes.Buffer
	if err := tmpl.Execute(&buff, m.getContextData(t)); err != nil {
		return errors.Wrapf(err, "rendering %s.txt", m.TemplateName)
	}
	m.TextContent = buff.String()
	return nil
}

func (m *EmailMessage) renderHTML(t *EmailTemplates) error {
	if m.TemplateName == "" {
		return nil
	}

	tmplEntry, ok := t.get(m.TemplateName, ".gohtml")
	if !ok {
		return nil
	}
	tmpl, ok := tmplEntry.(*htmltmpl.Template)
	if !ok {
		return nil
	}

	var buff bytes.Buffer
	if err := tmpl.Execute(&buff, m.getContextData(t)); err != nil {
		return errors.Wrapf(err, "rendering %s.gohtml", m.TemplateName)
	}
	m.HTMLContent = buff.String()
	return nil
}

func (m *EmailMessage) Render(t *EmailTemplates) error {
	if err := m.renderText(t); err != nil {
		return err
	}
	return m.renderHTML(t)
}

func (m *EmailMessage) Attach(r io.Reader, filename string, ct ...string) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "reading attachment")
	}
	return m.AttachBytes(content, filename, ct...)
}

func (m *EmailMessage) AttachBytes(content []byte, filename string, ct ...string) error {
	at := Attachment{Filename: filename, Content: new(bytes.Buffer)}

	encoder := base64.NewEncoder(base64.StdEncoding, at.Content)
	if _, err := encoder.Write(content); err != nil {
		return errors.Wrap(err, "encoding attachment")
	}
	if err := encoder.Close(); err != nil {
		return errors.Wrap(err, "encoding attachment")
	}

	if len(ct) > 0 {
		at.ContentType = ct[0]
	} else {
		at.ContentType = http.DetectContentType(content)
	}
	m.Attachments = append(m.Attachments, at)
	return nil
}

func (m *EmailMessage) HasRecipients() bool  { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool     { return (m.TextContent != "") || (m.HTMLContent != "") }
func (m *EmailMessage) HasAttachments() bool { return len(m.Attachments) > 0 }

package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/tbourn/go-gif-bot/internal/services"
)

// Validation errors. Their text is shown to the user as-is.
var (
	ErrNoSource           = errors.New("this message has no image attachment or image link")
	ErrAttachmentTooLarge = errors.New("image too large")
	ErrInvalidURL         = errors.New("the link does not point to an image")
)

// defaultURLFileName is used when a link carries no usable file name.
const defaultURLFileName = "image_from_url.png"

var allowedExts = []string{".png", ".jpg", ".jpeg", ".webp", ".bmp", ".tiff", ".gif"}

var urlPattern = regexp.MustCompile(`https?://\S+`)

// pickAttachment returns the first attachment with an allow-listed
// extension, or nil when none qualifies. Only that attachment is checked
// against limit.
func pickAttachment(atts []*discordgo.MessageAttachment, limit int64) (*discordgo.MessageAttachment, error) {
	for _, a := range atts {
		if a == nil || !hasAllowedExt(a.Filename) {
			continue
		}
		if limit > 0 && int64(a.Size) > limit {
			return nil, fmt.Errorf("%w (limit %dMB)", ErrAttachmentTooLarge, limit>>20)
		}
		return a, nil
	}
	return nil, nil
}

func hasAllowedExt(name string) bool {
	name = strings.ToLower(name)
	for _, ext := range allowedExts {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// extractURL returns the first http(s) token in content.
func extractURL(content string) string {
	return urlPattern.FindString(content)
}

// fileNameFromURL takes the last path segment without its query. Names
// without an extension fall back to defaultURLFileName.
func fileNameFromURL(u string) string {
	seg := u
	if i := strings.LastIndex(seg, "/"); i >= 0 {
		seg = seg[i+1:]
	}
	if i := strings.IndexAny(seg, "?#"); i >= 0 {
		seg = seg[:i]
	}
	if seg == "" || !strings.Contains(seg, ".") {
		return defaultURLFileName
	}
	return seg
}

// resolveSource picks the conversion source of msg: an attachment first,
// then a probed link.
func (b *Bot) resolveSource(ctx context.Context, msg *discordgo.Message) (services.Source, error) {
	if msg == nil {
		return services.Source{}, ErrNoSource
	}
	att, err := pickAttachment(msg.Attachments, b.cfg.AttachmentMaxBytes)
	if err != nil {
		return services.Source{}, err
	}
	if att != nil {
		return services.Source{URL: att.URL, FileName: att.Filename, FileSize: int64(att.Size)}, nil
	}

	u := extractURL(msg.Content)
	if u == "" {
		return services.Source{}, ErrNoSource
	}
	if b.prober == nil || !b.prober.ProbeIsImage(ctx, u) {
		return services.Source{}, ErrInvalidURL
	}
	return services.Source{URL: u, FileName: fileNameFromURL(u)}, nil
}

// isValidationError reports whether err should be shown to the user
// verbatim.
func isValidationError(err error) bool {
	return errors.Is(err, ErrNoSource) || errors.Is(err, ErrAttachmentTooLarge) || errors.Is(err, ErrInvalidURL)
}

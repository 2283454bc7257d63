/**
 * @description
 * Synthetic attachment identity and record building. Upstream attachment
 * records carry no durable id, so the engine derives one that stays stable
 * across reruns for the same upstream identity. This file is the single
 * writer of that derivation rule; changing it is a migration event.
 *
 * @dependencies
 * - fmt, hash/fnv, strings, time: Standard Go libraries.
 * - internal/coerce: Tolerant field extraction from upstream records.
 * - internal/domain: Attachment model.
 */
package app

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/kumpeapps/mercury-bank-download-sub000/internal/coerce"
	"github.com/kumpeapps/mercury-bank-download-sub000/internal/domain"
)

// URLExpiryWindow is how long a reconciled attachment URL is considered live.
const URLExpiryWindow = 12 * time.Hour

// SynthesizeAttachmentID derives the stable id for an upstream attachment:
// filename when present, else the URL's last path segment with the query
// stripped, else a hash of the URL when it has no path separator, else the
// item's position in the current list.
func SynthesizeAttachmentID(transactionID string, rec any, index int) string {
	if filename := coerce.String(rec, "filename"); filename != "" {
		return transactionID + "_" + filename
	}
	if rawURL := attachmentSourceURL(rec); rawURL != "" {
		trimmed := rawURL
		if q := strings.Index(trimmed, "?"); q >= 0 {
			trimmed = trimmed[:q]
		}
		if slash := strings.LastIndex(trimmed, "/"); slash >= 0 {
			if basename := trimmed[slash+1:]; basename != "" {
				return transactionID + "_" + basename
			}
		}
		return transactionID + "_" + hashURL(rawURL)
	}
	return fmt.Sprintf("%s_%d", transactionID, index)
}

// BuildAttachments converts the upstream attachment list of one transaction
// into storable rows: synthesized ids, inferred content types, the image
// thumbnail fallback, and a fresh URL expiry. Duplicate synthesized ids
// collapse to the last occurrence so the set matches what the store keeps.
func BuildAttachments(transactionID string, raw []any, now time.Time) []domain.Attachment {
	byID := make(map[string]int, len(raw))
	attachments := make([]domain.Attachment, 0, len(raw))

	for i, rec := range raw {
		att := buildAttachment(transactionID, rec, i, now)
		if prev, ok := byID[att.ID]; ok {
			attachments[prev] = att
			continue
		}
		byID[att.ID] = len(attachments)
		attachments = append(attachments, att)
	}
	return attachments
}

func buildAttachment(transactionID string, rec any, index int, now time.Time) domain.Attachment {
	expires := now.Add(URLExpiryWindow)
	att := domain.Attachment{
		ID:            SynthesizeAttachmentID(transactionID, rec, index),
		TransactionID: transactionID,
		Filename:      coerce.StringPtr(rec, "filename"),
		FileSize:      coerce.Int64Ptr(rec, "fileSize"),
		Description:   coerce.StringPtr(rec, "description"),
		URLExpiresAt:  &expires,
		UploadDate:    coerce.Time(rec, "uploadDate"),
	}
	if u := attachmentSourceURL(rec); u != "" {
		att.SourceURL = &u
	}

	contentType := coerce.String(rec, "contentType")
	if contentType == "" && att.Filename != nil {
		contentType = coerce.ContentTypeForFilename(*att.Filename)
	}
	if contentType != "" {
		att.ContentType = &contentType
	}

	if thumb := coerce.String(rec, "thumbnailUrl"); thumb != "" {
		att.ThumbnailURL = &thumb
	} else if att.SourceURL != nil && coerce.IsImageContentType(contentType) {
		att.ThumbnailURL = att.SourceURL
	}
	return att
}

// attachmentSourceURL accepts both the wire name ("url") and the semantic
// name ("source_url") for the attachment location.
func attachmentSourceURL(rec any) string {
	if u := coerce.String(rec, "url"); u != "" {
		return u
	}
	return coerce.String(rec, "sourceUrl")
}

func hashURL(rawURL string) string {
	h := fnv.New64a()
	h.Write([]byte(rawURL))
	return fmt.Sprintf("%016x", h.Sum64())
}

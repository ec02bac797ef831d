package shared

import "context"

// AuditMeta carries route-supplied reference identifiers and detail from
// a business handler to the audit recorder observing it. The recorder
// places the holder in the request context; handlers fill it in.
type AuditMeta struct {
	Reference string
	Detail    string
}

type auditMetaContextKey struct{}

// ContextWithAuditMeta stores the holder in the context.
func ContextWithAuditMeta(ctx context.Context, meta *AuditMeta) context.Context {
	return context.WithValue(ctx, auditMetaContextKey{}, meta)
}

// AuditMetaFromContext extracts the holder, or nil when no recorder is
// observing the request.
func AuditMetaFromContext(ctx context.Context) *AuditMeta {
	meta, _ := ctx.Value(auditMetaContextKey{}).(*AuditMeta)
	return meta
}

// SetAuditReference records the identifier of the entity the handler
// acted on. No-op outside an observed request.
func SetAuditReference(ctx context.Context, reference string) {
	if meta := AuditMetaFromContext(ctx); meta != nil {
		meta.Reference = reference
	}
}

// SetAuditDetail records a human-readable description of the outcome.
func SetAuditDetail(ctx context.Context, detail string) {
	if meta := AuditMetaFromContext(ctx); meta != nil {
		meta.Detail = detail
	}
}

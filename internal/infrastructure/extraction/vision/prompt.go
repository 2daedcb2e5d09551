package vision

import "github.com/lpellerin/invoiceflow/internal/core/domain"

func buildExtractionPrompt(doc *domain.Document) string {
	return `You are an invoice and estimate extraction engine for French freelancers.
The attached document is an invoice (facture) or an estimate (devis), written in French or English.
Return a strict JSON object with exactly these keys:
document_type ("invoice" or "estimate"), language ("fr" or "en"),
confidence_scores (object with integer keys overall, customer, project, tasks, pricing, each 0-100),
customer (object: name, email, phone, company, address),
project (object: name, description, start_date, end_date),
tasks (array of objects: name, description, estimated_hours, hourly_rate, amount),
invoice_or_estimate (object: number, issue_date, due_date, valid_until, subtotal, tax_rate, tax_amount, total, currency).
Dates as YYYY-MM-DD. Amounts as numbers, never strings. Omit values you cannot read instead of guessing.
No markdown, no extra keys.

Filename: ` + doc.Filename
}

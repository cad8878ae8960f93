package dto

import emaildomain "mailsync-backend/internal/email/domain"

type EmailsResponse struct {
	Emails []emaildomain.EmailRecord `json:"emails"`
	Limit  int                       `json:"limit"`
	Offset int                       `json:"offset"`
	Total  int64                     `json:"total"`
}

type SearchResponse struct {
	Query   string                    `json:"query"`
	Results []emaildomain.EmailRecord `json:"results"`
}

package core

import (
	"errors"
	"testing"
)

func TestValidateRecord(t *testing.T) {
	tests := []struct {
		name    string
		record  *ArticleRecord
		wantErr error
	}{
		{"valid", &ArticleRecord{PMID: "1", Abstract: "text"}, nil},
		{"nil record", nil, ErrInvalidRecord},
		{"empty id", &ArticleRecord{PMID: " ", Abstract: "text"}, ErrInvalidRecord},
		{"missing abstract", &ArticleRecord{PMID: "1"}, ErrInvalidRecord},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRecord(tt.record)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateRecord() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateRecord() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateQuery(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		topK    int
		wantErr bool
	}{
		{"valid", "heart failure", 10, false},
		{"empty", "", 5, true},
		{"whitespace", " \t\n", 5, true},
		{"zero top_k", "query", 0, true},
		{"negative top_k", "query", -3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQuery(tt.query, tt.topK)
			if tt.wantErr {
				if !errors.Is(err, ErrQueryValidation) {
					t.Errorf("ValidateQuery() error = %v, want ErrQueryValidation", err)
				}
			} else if err != nil {
				t.Errorf("ValidateQuery() error = %v", err)
			}
		})
	}
}

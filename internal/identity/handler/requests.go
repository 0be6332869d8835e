package handler

import (
	"strings"

	"identityvault/internal/identity/models"
	"identityvault/internal/identity/orchestrator"
	"identityvault/pkg/address"
	dErrors "identityvault/pkg/domain-errors"
)

// SaveIdentityRequest is the body of POST /api/identity.
type SaveIdentityRequest struct {
	Address      string               `json:"address"`
	Hash         *string              `json:"hash,omitempty"`
	Name         *string              `json:"name,omitempty"`
	Reputation   *int                 `json:"reputation,omitempty"`
	Badges       []models.Badge       `json:"badges,omitempty"`
	ImportedFrom *models.ImportedFrom `json:"importedFrom,omitempty"`
}

func (r *SaveIdentityRequest) Validate() error {
	r.Address = strings.TrimSpace(r.Address)
	if r.Address == "" {
		return dErrors.New(dErrors.CodeValidation, "Invalid identity data: address is required")
	}
	if !address.IsWellFormed(r.Address) {
		return dErrors.New(dErrors.CodeInvalidAddress, "Please enter a valid Ethereum address.")
	}
	if r.Reputation != nil && *r.Reputation < 0 {
		return dErrors.New(dErrors.CodeValidation, "Invalid identity data: reputation must not be negative")
	}
	return nil
}

func (r *SaveIdentityRequest) toPatch() models.IdentityPatch {
	return models.IdentityPatch{
		Address:      r.Address,
		IdentityHash: r.Hash,
		Name:         r.Name,
		Reputation:   r.Reputation,
		Badges:       r.Badges,
		ImportedFrom: r.ImportedFrom,
	}
}

// ImportRequest is the body of both import endpoints.
type ImportRequest struct {
	SourceChain   string `json:"sourceChain"`
	SourceAddress string `json:"sourceAddress"`
	IdentityType  string `json:"identityType"`
}

func (r *ImportRequest) Validate() error {
	r.SourceChain = strings.TrimSpace(r.SourceChain)
	r.SourceAddress = strings.TrimSpace(r.SourceAddress)
	r.IdentityType = strings.TrimSpace(r.IdentityType)
	if r.SourceChain == "" || r.SourceAddress == "" || r.IdentityType == "" {
		return dErrors.New(dErrors.CodeBadRequest, "sourceChain, sourceAddress, and identityType are required")
	}
	return nil
}

// ChainStoreRequest is the body of POST /api/chain/identity.
type ChainStoreRequest struct {
	IdentityHash string `json:"identityHash"`
	SourceChain  string `json:"sourceChain"`
}

func (r *ChainStoreRequest) Validate() error {
	r.IdentityHash = strings.TrimSpace(r.IdentityHash)
	r.SourceChain = strings.ToLower(strings.TrimSpace(r.SourceChain))
	if r.IdentityHash == "" || r.SourceChain == "" {
		return dErrors.New(dErrors.CodeValidation, "Please fill in all required fields.")
	}
	return nil
}

// ChainShareRequest is the body of POST /api/chain/identity/share.
type ChainShareRequest struct {
	Recipient string `json:"recipient"`
}

func (r *ChainShareRequest) Validate() error {
	r.Recipient = strings.TrimSpace(r.Recipient)
	if r.Recipient == "" {
		return dErrors.New(dErrors.CodeValidation, "Please enter a recipient address.")
	}
	if !address.IsWellFormed(r.Recipient) {
		return dErrors.New(dErrors.CodeValidation, "Please enter a valid recipient address.")
	}
	return nil
}

// OperationResponse is returned by the chain write endpoints.
type OperationResponse struct {
	Operation   orchestrator.Operation `json:"operation"`
	BlockNumber uint64                 `json:"blockNumber,omitempty"`
	View        *models.LedgerIdentity `json:"ledger,omitempty"`
	Identity    *models.IdentityRecord `json:"identity,omitempty"`
	Import      *ImportRequest         `json:"import,omitempty"`
	Message     string                 `json:"message"`
}

func toOperationResponse(res *orchestrator.Result, message string) OperationResponse {
	out := OperationResponse{
		Operation: res.Operation,
		View:      res.View,
		Identity:  res.Identity,
		Message:   message,
	}
	if res.Receipt != nil {
		out.BlockNumber = res.Receipt.BlockNumber
	}
	return out
}

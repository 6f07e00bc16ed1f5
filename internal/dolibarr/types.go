package dolibarr

// Dolibarr's REST API returns every numeric field as a string and every date
// as Unix epoch seconds in string form. The raw types below keep that shape;
// coercion into real numbers and times happens in the sync layer.

type Invoice struct {
	ID             string `json:"id"`
	Ref            string `json:"ref"`
	RefSupplier    string `json:"ref_supplier"`
	RefClient      string `json:"ref_client"`
	SocID          string `json:"socid"`
	Type           string `json:"type"`
	Statut         string `json:"statut"`
	Status         string `json:"status"`
	Paye           string `json:"paye"`
	Paid           string `json:"paid"`
	TotalHT        string `json:"total_ht"`
	TotalTVA       string `json:"total_tva"`
	TotalTTC       string `json:"total_ttc"`
	Date           string `json:"date"`
	DateValidation string `json:"date_validation"`
	DateCreation   string `json:"date_creation"`
	DateEcheance   string `json:"date_echeance"`
	FkProject      string `json:"fk_project"`
	Lines          []Line `json:"lines"`
}

type Line struct {
	RowID               string `json:"rowid"`
	FkProduct           string `json:"fk_product"`
	ProductRef          string `json:"product_ref"`
	ProductLabel        string `json:"product_label"`
	Label               string `json:"label"`
	Qty                 string `json:"qty"`
	Subprice            string `json:"subprice"`
	TvaTx               string `json:"tva_tx"`
	TotalHT             string `json:"total_ht"`
	TotalTVA            string `json:"total_tva"`
	TotalTTC            string `json:"total_ttc"`
	FkAccountingAccount string `json:"fk_accounting_account"`
}

type Payment struct {
	Ref           string `json:"ref"`
	Amount        string `json:"amount"`
	Date          string `json:"date"`
	Type          string `json:"type"`
	FkBankAccount string `json:"fk_bank_account"`
}

type BankAccount struct {
	ID            string `json:"id"`
	Ref           string `json:"ref"`
	Label         string `json:"label"`
	Bank          string `json:"bank"`
	AccountNumber string `json:"account_number"`
	CurrencyCode  string `json:"currency_code"`
	Balance       string `json:"balance"`
	Clos          string `json:"clos"`
}

package freeagent

import (
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/dvloznov/pocketsync/internal/providers"
)

const ofxHeader = `<?xml version="1.0" encoding="UTF-8" standalone="no"?>` + "\n" +
	`<?OFX OFXHEADER="200" VERSION="211" SECURITY="NONE" OLDFILEUID="NONE" NEWFILEUID="NONE"?>` + "\n"

type ofxDocument struct {
	XMLName   xml.Name     `xml:"OFX"`
	Statement ofxStatement `xml:"BANKMSGSRSV1>STMTTRNRS>STMTRS"`
}

type ofxStatement struct {
	Currency     string           `xml:"CURDEF"`
	Transactions []ofxTransaction `xml:"BANKTRANLIST>STMTTRN"`
}

type ofxTransaction struct {
	Type   string `xml:"TRNTYPE"`
	Posted string `xml:"DTPOSTED"`
	Amount string `xml:"TRNAMT"`
	FITID  string `xml:"FITID"`
	Name   string `xml:"NAME"`
	Memo   string `xml:"MEMO"`
}

// buildStatement renders req as an OFX bank statement. Each line's memo is
// the correlation token the read-back matches on.
func buildStatement(req providers.UploadRequest) (string, error) {
	doc := ofxDocument{Statement: ofxStatement{Currency: req.Account.Currency}}
	for _, t := range req.Transactions {
		doc.Statement.Transactions = append(doc.Statement.Transactions, ofxTransaction{
			Type:   "OTHER",
			Posted: fmt.Sprintf("%04d%02d%02d", t.Date.Year, int(t.Date.Month), t.Date.Day),
			Amount: req.Amount(t),
			FITID:  strconv.FormatInt(t.ID, 10),
			Name:   t.Payee,
			Memo:   req.Origin.Token(t.ExternalRef),
		})
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("buildStatement: %w", err)
	}
	return ofxHeader + string(body), nil
}

package render

var builtins = map[string]string{
	"RECEIPT": `PAYMENT RECEIPT No. {{legal_number}}
Case file: {{case_file_title}} ({{case_file_id}})
District: {{district_id}}
Property: {{property_reference}} - {{land_use_category}}, {{area}} m2
Unit price: {{unit_price}}
Valuation: {{valuation}}

{{#repeat}}Received from: {{applicant_name#}} ({{applicant_national_id#}})
{{/repeat}}Amount: {{consolidated_amount}}
Issued: {{issued_on}}
`,

	"SALE_DEED": `SALE DEED
Reference receipt: {{legal_number}}
Case file: {{case_file_title}} ({{case_file_id}})
Property: {{property_reference}} - {{land_use_category}}, {{area}} m2
Valuation: {{valuation}}

{{#repeat}}Party {{#}}{{applicant_marker#}}: {{applicant_name#}} ({{applicant_national_id#}}), share {{applicant_share#}}
{{/repeat}}
Consolidated amount: {{consolidated_amount}}
Signed: {{issued_on}}
`,

	"FINANCIAL_CERT": `FINANCIAL CERTIFICATE
Case file: {{case_file_title}} ({{case_file_id}})
Property: {{property_reference}}
{{#repeat}}Applicant: {{applicant_name#}} ({{applicant_national_id#}}), amount due {{applicant_share#}}
{{/repeat}}Unit price: {{unit_price}}
Valuation: {{valuation}}
Issued: {{issued_on}}
`,

	"REQUISITION": `REQUISITION
Case file: {{case_file_title}} ({{case_file_id}})
District: {{district_id}}
Property: {{property_reference}} - {{land_use_category}}, {{area}} m2
Valuation: {{valuation}}
Issued: {{issued_on}}
`,
}

package mapping

import "sync"

const (
	KindCandidate         = "candidate"
	KindPAC               = "pac"
	KindOffice            = "office"
	KindDistrict          = "district"
	KindDivision          = "division"
	KindCounty            = "county"
	KindElectionSeason    = "election_season"
	KindCampaign          = "campaign"
	KindFilingPeriod      = "filing_period"
	KindFiling            = "filing"
	KindContribution      = "contribution"
	KindExpenditure       = "expenditure"
	KindCandidateRegistry = "candidate_registry"
	KindCommitteeRegistry = "committee_registry"
)

func str(s string) *string { return &s }

func col(source, target string, typ TargetType) Field {
	return Field{Source: source, Target: target, Type: typ}
}

func required(fl Field) Field {
	fl.Required = true
	return fl
}

func link(field, column, parent string) Link {
	return Link{Field: field, Column: column, ParentTable: parent, ParentKey: "external_id"}
}

func aliased(fl Field, aliases ...string) Field {
	fl.Aliases = aliases
	return fl
}

var candidateTable = Table{
	Kind:              KindCandidate,
	StorageTable:      "candidates",
	KeyField:          "external_id",
	EntityKind:        "candidate",
	EntityUserIDField: "entity_user_id",
	SlugField:         "slug",
	SlugSources:       []string{"first_name", "middle_name", "last_name", "suffix"},
	Fields: []Field{
		required(col("candidateid", "external_id", TypeInteger)),
		required(col("entityid", "entity_user_id", TypeInteger)),
		col("prefix", "prefix", TypeString),
		col("firstname", "first_name", TypeString),
		col("middlename", "middle_name", TypeString),
		col("lastname", "last_name", TypeString),
		col("suffix", "suffix", TypeString),
		col("businessphone", "business_phone", TypeString),
		col("homephone", "home_phone", TypeString),
		col("emailaccount", "email", TypeString),
		col("statusid", "status_id", TypeInteger),
		col("dateadded", "date_added", TypeDate),
		col("datelastupdated", "date_updated", TypeTimestamp),
		col("qualcandidateid", "qual_candidate_id", TypeInteger),
		col("deceased", "deceased", TypeBoolean),
	},
}

var pacTable = Table{
	Kind:              KindPAC,
	StorageTable:      "pacs",
	KeyField:          "external_id",
	EntityKind:        "pac",
	EntityUserIDField: "entity_user_id",
	SlugField:         "slug",
	SlugSources:       []string{"name"},
	Fields: []Field{
		required(col("politicalactioncommitteeid", "external_id", TypeInteger)),
		required(col("entityid", "entity_user_id", TypeInteger)),
		required(col("name", "name", TypeString)),
		col("acronym", "acronym", TypeString),
		col("businessphone", "business_phone", TypeString),
		col("homephone", "home_phone", TypeString),
		col("emailaddress", "email", TypeString),
		col("treasurerid", "treasurer_external_id", TypeInteger),
		col("dateadded", "date_added", TypeDate),
		col("statusid", "status_id", TypeInteger),
		col("datelastupdated", "date_updated", TypeTimestamp),
		col("bankname", "bank_name", TypeString),
		col("bankphone", "bank_phone", TypeString),
		col("faxphone", "fax_number", TypeString),
		col("initialbalance", "initial_balance", TypeMoney),
		col("isinitialbalancesetbypac", "initial_balance_from_self", TypeBoolean),
		col("initialdebt", "initial_debt", TypeMoney),
		col("isinitialdebtsetbypac", "initial_debt_from_self", TypeBoolean),
	},
}

var officeTable = Table{
	Kind:         KindOffice,
	StorageTable: "offices",
	KeyField:     "external_id",
	Fields: []Field{
		required(col("electionofficeid", "external_id", TypeInteger)),
		required(col("description", "description", TypeString)),
		col("statusid", "status_id", TypeInteger),
		col("officetypeid", "office_type_external_id", TypeInteger),
	},
}

var districtTable = Table{
	Kind:         KindDistrict,
	StorageTable: "districts",
	KeyField:     "external_id",
	Fields: []Field{
		required(col("districtid", "external_id", TypeInteger)),
		col("electionofficeid", "office_external_id", TypeInteger),
		required(col("description", "name", TypeString)),
		col("statusid", "status_id", TypeInteger),
	},
	Links: []Link{link("office_external_id", "office_id", "offices")},
}

var divisionTable = Table{
	Kind:         KindDivision,
	StorageTable: "divisions",
	KeyField:     "external_id",
	Fields: []Field{
		required(col("divisionid", "external_id", TypeInteger)),
		col("districtid", "district_external_id", TypeInteger),
		required(col("description", "name", TypeString)),
		col("statusid", "status_id", TypeInteger),
	},
	Links: []Link{link("district_external_id", "district_id", "districts")},
}

var countyTable = Table{
	Kind:         KindCounty,
	StorageTable: "counties",
	KeyField:     "external_id",
	Fields: []Field{
		required(col("countyid", "external_id", TypeInteger)),
		required(col("description", "name", TypeString)),
	},
}

var electionSeasonTable = Table{
	Kind:         KindElectionSeason,
	StorageTable: "election_seasons",
	KeyField:     "external_id",
	Fields: []Field{
		required(col("electionseasonid", "external_id", TypeInteger)),
		required(col("description", "year", TypeString)),
		col("statusid", "status_id", TypeInteger),
		col("isspecial", "special", TypeBoolean),
	},
}

var campaignTable = Table{
	Kind:         KindCampaign,
	StorageTable: "campaigns",
	KeyField:     "external_id",
	Fields: []Field{
		required(col("campaignid", "external_id", TypeInteger)),
		required(col("candidateid", "candidate_external_id", TypeInteger)),
		col("electionseasonid", "election_season_external_id", TypeInteger),
		col("electionofficeid", "office_external_id", TypeInteger),
		col("divisionid", "division_external_id", TypeInteger),
		col("districtid", "district_external_id", TypeInteger),
		col("countyid", "county_external_id", TypeInteger),
		col("treasurerid", "treasurer_external_id", TypeInteger),
		col("politicalpartyid", "political_party_external_id", TypeInteger),
		col("statusid", "status_id", TypeInteger),
		col("commiteename", "committee_name", TypeString),
		col("committeeemailaddress", "committee_email", TypeString),
		col("initialbalance", "initial_balance", TypeMoney),
		col("initialdebt", "initial_debt", TypeMoney),
		col("isbiannual", "biannual", TypeBoolean),
		col("dateadded", "date_added", TypeTimestamp),
		col("datelastupdated", "last_updated", TypeTimestamp),
	},
	Links: []Link{
		link("candidate_external_id", "candidate_id", "candidates"),
		link("election_season_external_id", "election_season_id", "election_seasons"),
		link("office_external_id", "office_id", "offices"),
		link("district_external_id", "district_id", "districts"),
		link("division_external_id", "division_id", "divisions"),
		link("county_external_id", "county_id", "counties"),
	},
}

var filingPeriodTable = Table{
	Kind:         KindFilingPeriod,
	StorageTable: "filing_periods",
	KeyField:     "external_id",
	Fields: []Field{
		required(col("filingperiodid", "external_id", TypeInteger)),
		required(col("description", "description", TypeString)),
		col("initialdate", "initial_date", TypeDate),
		col("enddate", "end_date", TypeDate),
		col("duedate", "due_date", TypeDate),
		col("filingdate", "filing_date", TypeTimestamp),
		col("filingperiodtypeid", "period_type_external_id", TypeInteger),
		col("allowstatementofnoactivity", "allow_no_activity", TypeBoolean),
		col("excludefromcascading", "exclude_from_cascading", TypeBoolean),
	},
}

// filingTable reads the filing export. The key is the upstream report id.
var filingTable = Table{
	Kind:         KindFiling,
	StorageTable: "filings",
	KeyField:     "report_id",
	Fields: []Field{
		required(col("ReportID", "report_id", TypeInteger)),
		col("ReportVersionID", "report_version_id", TypeInteger),
		aliased(col("Amended", "amendment_count", TypeInteger), "AmendmentCount"),
		aliased(col("Final", "final", TypeBoolean), "IsFinal"),
		required(aliased(col("StateID", "owner_user_id", TypeInteger), "OrgID")),
		aliased(col("CommitteeName", "committee_name", TypeString), "Committee Name"),
		required(aliased(col("ReportName", "period_description", TypeString), "Report Name")),
		required(aliased(col("FilingStartDate", "period_start", TypeDate), "Start of Period")),
		required(aliased(col("FilingEndDate", "period_end", TypeDate), "End of Period")),
		col("FilingDueDate", "due_date", TypeDate),
		aliased(col("FiledDate", "filed_date", TypeTimestamp), "SubmittedDate"),
		col("ElectionYear", "election_year", TypeInteger),
		col("OfficeName", "office_name", TypeString),
		col("District", "district_name", TypeString),
		col("Jurisdiction", "county_name", TypeString),
		col("ReportFileName", "report_file_name", TypeString),
		col("opening_balance", "opening_balance", TypeMoney),
		col("closing_balance", "closing_balance", TypeMoney),
		col("total_loans", "total_loans", TypeMoney),
		col("total_inkind", "total_inkind", TypeMoney),
		col("unpaid_debt", "total_unpaid_debts", TypeMoney),
	},
}

// contributionTable reads the CON transaction export. Rows are keyed by the
// filing owner so that a bad OrgID drops the whole filing group.
var contributionTable = Table{
	Kind:         KindContribution,
	StorageTable: "transactions",
	KeyField:     "owner_user_id",
	Fields: []Field{
		required(col("OrgID", "owner_user_id", TypeInteger)),
		col("Committee Name", "committee_name", TypeString),
		required(col("Report Name", "period_description", TypeString)),
		required(col("Start of Period", "period_start", TypeDate)),
		required(col("End of Period", "period_end", TypeDate)),
		required(col("Contribution Type", "transaction_type", TypeString)),
		required(aliased(col("Transaction Amount", "amount", TypeMoney), "Amount")),
		col("Transaction Date", "received_date", TypeTimestamp),
		col("Check Number", "check_number", TypeString),
		{Source: "Description", Target: "description", Type: TypeString, MaxLen: 74},
		col("Contributor Code", "contributor_code", TypeString),
		col("Prefix", "prefix", TypeString),
		col("First Name", "first_name", TypeString),
		col("Middle Name", "middle_name", TypeString),
		col("Last Name", "last_name", TypeString),
		col("Suffix", "suffix", TypeString),
		{Source: "Contributor Employer", Target: "company_name", Type: TypeString, Default: str("")},
		col("Contributor Occupation", "occupation", TypeString),
		col("Contributor Address Line 1", "address_1", TypeString),
		col("Contributor Address Line 2", "address_2", TypeString),
		col("Contributor City", "city", TypeString),
		col("Contributor State", "state", TypeString),
		col("Contributor Zip Code", "zipcode", TypeString),
	},
}

var expenditureTable = Table{
	Kind:         KindExpenditure,
	StorageTable: "transactions",
	KeyField:     "owner_user_id",
	Fields: []Field{
		required(col("OrgID", "owner_user_id", TypeInteger)),
		col("Committee Name", "committee_name", TypeString),
		required(col("Report Name", "period_description", TypeString)),
		required(col("Start of Period", "period_start", TypeDate)),
		required(col("End of Period", "period_end", TypeDate)),
		required(aliased(col("Expenditure Amount", "amount", TypeMoney), "Amount")),
		col("Expenditure Date", "received_date", TypeTimestamp),
		col("Expenditure Type", "expenditure_type", TypeString),
		col("Description", "description", TypeString),
		col("Payee Prefix", "prefix", TypeString),
		col("Payee First Name", "first_name", TypeString),
		col("Payee Middle Name", "middle_name", TypeString),
		col("Payee Last Name", "last_name", TypeString),
		col("Payee Suffix", "suffix", TypeString),
		{Source: "Payee Company", Target: "company_name", Type: TypeString, Default: str("")},
		col("Payee Address 1", "address_1", TypeString),
		col("Payee Address 2", "address_2", TypeString),
		col("Payee City", "city", TypeString),
		col("Payee State", "state", TypeString),
		col("Payee Zip Code", "zipcode", TypeString),
	},
}

var candidateRegistryTable = Table{
	Kind:         KindCandidateRegistry,
	StorageTable: "campaigns",
	KeyField:     "user_id",
	Fields: []Field{
		required(col("StateID", "user_id", TypeInteger)),
		required(col("CandidateName", "full_name", TypeString)),
		col("CandidateEmail", "email", TypeString),
		col("PublicPhoneNumber", "business_phone", TypeString),
		col("PoliticalPartyCommitteeName", "committee_name", TypeString),
		required(col("ElectionName", "election_name", TypeString)),
		col("ElectionYear", "election_year", TypeInteger),
		col("OfficeName", "office_name", TypeString),
		col("JurisdictionType", "office_type", TypeString),
		col("District", "district_name", TypeString),
		col("Jurisdiction", "county_name", TypeString),
		col("Party", "party", TypeString),
		col("IDNumber", "registry_id", TypeString),
		col("OfficeId", "office_ref", TypeString),
		col("DistrictId", "district_ref", TypeString),
		col("ElectionId", "election_ref", TypeFloat),
	},
}

var committeeRegistryTable = Table{
	Kind:         KindCommitteeRegistry,
	StorageTable: "pacs",
	KeyField:     "name",
	Fields: []Field{
		required(col("CommitteeName", "name", TypeString)),
		col("StateID", "user_id", TypeInteger),
		col("IdNumber", "registry_id", TypeString),
		col("CommitteeType", "committee_type", TypeString),
	},
}

// BuiltinTables returns copies of the compiled-in mapping tables.
func BuiltinTables() []Table {
	return []Table{
		candidateTable, pacTable, officeTable, districtTable, divisionTable, countyTable,
		electionSeasonTable, campaignTable, filingPeriodTable, filingTable,
		contributionTable, expenditureTable, candidateRegistryTable, committeeRegistryTable,
	}
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	r, err := NewRegistry(BuiltinTables()...)
	if err != nil {
		panic(err)
	}
	return r
})

// DefaultRegistry returns the validated built-in registry.
func DefaultRegistry() *Registry {
	return defaultRegistry()
}

// PipelineKinds are the kinds loaded through the generic change-set pipeline,
// in dependency order.
var PipelineKinds = []string{
	KindCounty, KindElectionSeason, KindOffice, KindDistrict, KindDivision,
	KindCandidate, KindPAC, KindCampaign, KindFilingPeriod,
}

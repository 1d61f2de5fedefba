package research

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ReadDocument loads a study document as plain text. Only text formats are
// supported; binary formats surface a recoverable error so indexing can
// count and skip them.
func ReadDocument(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	case ".pdf", ".docx", ".doc":
		return "", fmt.Errorf("binary document format %q is not supported, convert to text first", filepath.Ext(path))
	default:
		return "", fmt.Errorf("unsupported file format %q", filepath.Ext(path))
	}
}

// StudyInfo is the flat per-document record produced by ParseStudy and kept
// (in reduced form) in the study index.
type StudyInfo struct {
	Title                   string `json:"title"`
	Sponsor                 string `json:"pharma"`
	StudyDesign             string `json:"study_design"`
	StudyTreatment          string `json:"study_treatment"`
	StudyVisit              string `json:"study_visit"`
	PrimaryAnalysisEndpoint string `json:"primary_analysis_endpoint"`
	PrimaryAnalysisApproach string `json:"primary_analysis_approach"`
	SampleSize              string `json:"sample_size"`
	DetectedPhase           string `json:"detected_phase"`
	DetectedTherapeutic     string `json:"detected_therapeutic"`
	DetectedIndication      string `json:"detected_indication"`
	SourceFile              string `json:"source_file"`
	DocumentLength          int    `json:"document_length"`
	ExtractionConfidence    string `json:"extraction_confidence"`
}

const notSpecified = "Not specified"

type fieldPatterns struct {
	field    string
	patterns []*regexp.Regexp
}

// indexPatterns drive the first-match-wins field extraction for indexing.
var indexPatterns = []fieldPatterns{
	{"title", []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:title|study title):\s*(.+?)(?:\n|$)`),
		regexp.MustCompile(`(?i)^(.+?)\s*(?:protocol|study)`),
		regexp.MustCompile(`(?i)study:\s*(.+?)(?:\n|$)`),
	}},
	{"pharma", []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:sponsor|pharmaceutical company|company):\s*(.+?)(?:\n|$)`),
		regexp.MustCompile(`(?i)(?:pharma|sponsor):\s*(.+?)(?:\n|$)`),
	}},
	{"study_design", []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:study design|design):\s*(.+?)(?:\n|$)`),
		regexp.MustCompile(`(?i)(?:randomized|double.?blind|placebo.?controlled|crossover)[\w\s,-]+`),
	}},
	{"study_treatment", []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:treatment|intervention):\s*(.+?)(?:\n|$)`),
		regexp.MustCompile(`(?i)(?:drug|compound|therapeutic):\s*(.+?)(?:\n|$)`),
	}},
	{"study_visit", []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:visit schedule|visits):\s*(.+?)(?:\n|$)`),
		regexp.MustCompile(`(?i)(?:baseline|week\s+\d+|day\s+\d+|follow.?up)[\w\s,.-]+`),
	}},
	{"primary_analysis_endpoint", []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:primary endpoint|primary outcome|primary analysis endpoint):\s*(.+?)(?:\n|$)`),
		regexp.MustCompile(`(?i)primary.{0,50}endpoint[:\s]*(.+?)(?:\n|$)`),
	}},
	{"primary_analysis_approach", []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:primary analysis|statistical method|analysis approach|statistical approach):\s*(.+?)(?:\n|$)`),
		regexp.MustCompile(`(?i)(?:MMRM|mixed model|ANCOVA|t-test|chi-square)[\w\s()-]+`),
	}},
	{"sample_size", []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:sample size|number of subjects|n\s*=):\s*(\d+)`),
		regexp.MustCompile(`(?i)(\d+)\s*(?:subjects|patients|participants)`),
	}},
}

// extractFields runs ordered pattern lists over the text, keeping the first
// match per field. A pattern without a capture group contributes its whole
// match.
func extractFields(text string, groups []fieldPatterns) map[string]string {
	out := map[string]string{}
	for _, group := range groups {
		for _, pattern := range group.patterns {
			match := pattern.FindStringSubmatch(text)
			if match == nil {
				continue
			}
			value := match[0]
			if len(match) > 1 {
				value = match[1]
			}
			out[group.field] = strings.TrimSpace(value)
			break
		}
	}
	return out
}

// phaseKeywords is checked most-specific first: "phase i" is a substring of
// "phase iii", so the higher phases must win when both appear.
var phaseKeywords = []struct {
	Phase string
	Terms []string
}{
	{"Phase IV", []string{"phase iv", "phase 4", "phase four", "post-marketing", "surveillance"}},
	{"Phase III", []string{"phase iii", "phase 3", "phase three", "pivotal", "registration"}},
	{"Phase II", []string{"phase ii", "phase 2", "phase two", "proof of concept", "dose finding"}},
	{"Phase I", []string{"phase i", "phase 1", "phase one", "first-in-human", "dose escalation"}},
}

// DetectPhase resolves the trial phase with a fixed priority: title first,
// then filename, then the study design field. The title alone is enough to
// settle the phase even when later sources disagree.
func DetectPhase(title, filename, design string) string {
	for _, source := range []string{strings.ToLower(title), strings.ToLower(filename), strings.ToLower(design)} {
		if source == "" {
			continue
		}
		for _, candidate := range phaseKeywords {
			for _, term := range candidate.Terms {
				if strings.Contains(source, term) {
					return candidate.Phase
				}
			}
		}
	}
	return "Unknown"
}

var therapeuticKeywords = []struct {
	Area  string
	Terms []string
}{
	{"Oncology", []string{"cancer", "tumor", "tumour", "oncology", "carcinoma", "melanoma", "lymphoma", "leukemia", "sarcoma", "chemotherapy", "radiation"}},
	{"Cardiology", []string{"cardiac", "heart", "cardiovascular", "cardiology", "coronary", "myocardial", "hypertension"}},
	{"Neurology", []string{"neurological", "brain", "neurology", "alzheimer", "parkinson", "stroke", "epilepsy", "dementia"}},
	{"Immunology", []string{"immune", "immunology", "autoimmune", "immunotherapy", "rheumatoid", "lupus"}},
	{"Dermatology", []string{"skin", "dermatology", "melanoma", "dermatitis", "psoriasis", "eczema"}},
	{"Endocrinology", []string{"diabetes", "diabetic", "glucose", "insulin", "thyroid", "hormone"}},
	{"Respiratory", []string{"lung", "pulmonary", "asthma", "copd", "respiratory", "pneumonia"}},
}

var indicationKeywords = []struct {
	Indication string
	Terms      []string
}{
	{"Breast Cancer", []string{"breast cancer", "breast carcinoma", "mammary carcinoma"}},
	{"Melanoma", []string{"melanoma", "skin cancer", "cutaneous melanoma"}},
	{"Lung Cancer", []string{"lung cancer", "pulmonary carcinoma", "nsclc", "sclc", "non-small cell", "small cell"}},
	{"Heart Disease", []string{"heart disease", "cardiac disease", "myocardial infarction", "coronary artery"}},
	{"Type 2 Diabetes", []string{"type 2 diabetes", "diabetes mellitus", "t2dm", "diabetic"}},
	{"Hypertension", []string{"hypertension", "high blood pressure", "elevated blood pressure"}},
	{"Alzheimer Disease", []string{"alzheimer", "dementia", "cognitive impairment"}},
	{"Rheumatoid Arthritis", []string{"rheumatoid arthritis", "ra", "joint inflammation"}},
}

// scoreTerms weights each keyword by where it appears: the design field is
// the strongest signal, then the title, then anywhere in the body. Per term
// only the strongest location counts.
func scoreTerms(terms []string, design, title, body string) int {
	score := 0
	for _, term := range terms {
		switch {
		case strings.Contains(design, term):
			score += 3
		case strings.Contains(title, term):
			score += 2
		case strings.Contains(body, term):
			score += 1
		}
	}
	return score
}

func detectTherapeutic(design, title, body string) string {
	best, bestScore := "Unknown", 0
	for _, candidate := range therapeuticKeywords {
		if score := scoreTerms(candidate.Terms, design, title, body); score > bestScore {
			best, bestScore = candidate.Area, score
		}
	}
	return best
}

func detectIndication(design, title, body string) string {
	best, bestScore := "Unknown", 0
	for _, candidate := range indicationKeywords {
		if score := scoreTerms(candidate.Terms, design, title, body); score > bestScore {
			best, bestScore = candidate.Indication, score
		}
	}
	return best
}

// ParseStudy extracts the index-level study record from document text.
func ParseStudy(text, path string) StudyInfo {
	fields := extractFields(text, indexPatterns)

	title := fields["title"]
	design := fields["study_design"]
	body := strings.ToLower(text)

	filled := 0
	for _, v := range fields {
		if v != "" {
			filled++
		}
	}
	confidence := "Low"
	switch {
	case filled > 5:
		confidence = "High"
	case filled > 2:
		confidence = "Medium"
	}

	return StudyInfo{
		Title:                   orDefault(title, "Document: "+filepath.Base(path)),
		Sponsor:                 orDefault(fields["pharma"], notSpecified),
		StudyDesign:             orDefault(design, notSpecified),
		StudyTreatment:          orDefault(fields["study_treatment"], notSpecified),
		StudyVisit:              orDefault(fields["study_visit"], notSpecified),
		PrimaryAnalysisEndpoint: orDefault(fields["primary_analysis_endpoint"], notSpecified),
		PrimaryAnalysisApproach: orDefault(fields["primary_analysis_approach"], notSpecified),
		SampleSize:              orDefault(fields["sample_size"], notSpecified),
		DetectedPhase:           DetectPhase(title, filepath.Base(path), design),
		DetectedTherapeutic:     detectTherapeutic(strings.ToLower(design), strings.ToLower(title), body),
		DetectedIndication:      detectIndication(strings.ToLower(design), strings.ToLower(title), body),
		SourceFile:              path,
		DocumentLength:          len(text),
		ExtractionConfidence:    confidence,
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// Deep-analysis patterns used by the study_analysis tool. These are wider
// than the index patterns: multi-line section captures and richer
// alternations.
var deepPatterns = []fieldPatterns{
	{"title", []*regexp.Regexp{
		regexp.MustCompile(`(?is)(?:title|study title):\s*(.+?)(?:\n|$)`),
		regexp.MustCompile(`(?is)^(.+?)\s*(?:protocol|study)`),
		regexp.MustCompile(`(?is)study:\s*(.+?)(?:\n|$)`),
		regexp.MustCompile(`(?is)(?:protocol|study)\s+title[:\s]*(.+?)(?:\n|$)`),
	}},
	{"pharma", []*regexp.Regexp{
		regexp.MustCompile(`(?is)(?:sponsor|pharmaceutical company|company|pharma):\s*(.+?)(?:\n|$)`),
		regexp.MustCompile(`(?is)(?:sponsored by|developed by):\s*(.+?)(?:\n|$)`),
	}},
	{"study_design", []*regexp.Regexp{
		regexp.MustCompile(`(?is)(?:study design|design|study type):\s*(.+?)(?:\n|$)`),
		regexp.MustCompile(`(?is)(randomized.{0,100}controlled.{0,50}study)`),
		regexp.MustCompile(`(?is)(double.?blind.{0,50}placebo.?controlled)`),
		regexp.MustCompile(`(?is)(multicenter.{0,50}study)`),
		regexp.MustCompile(`(?is)(phase\s+[i1v]+.{0,100}study)`),
	}},
	{"primary_endpoint", []*regexp.Regexp{
		regexp.MustCompile(`(?is)(?:primary endpoint|primary outcome|primary objective):\s*(.+?)(?:\n|\.|;)`),
		regexp.MustCompile(`(?is)primary.{0,30}endpoint[:\s]*(.+?)(?:\n|\.|;)`),
		regexp.MustCompile(`(?is)(?:primary efficacy endpoint):\s*(.+?)(?:\n|\.|;)`),
	}},
	{"secondary_endpoints", []*regexp.Regexp{
		regexp.MustCompile(`(?is)(?:secondary endpoints?|secondary outcomes?):\s*(.+?)(?:\n\n|\. Primary|\. Secondary)`),
		regexp.MustCompile(`(?is)secondary.{0,30}endpoints?[:\s]*(.+?)(?:\n\n|\. )`),
	}},
	{"statistical_method", []*regexp.Regexp{
		regexp.MustCompile(`(?is)(?:statistical method|primary analysis|statistical approach|analysis method):\s*(.+?)(?:\n|$)`),
		regexp.MustCompile(`(?is)(MMRM|mixed.?model|ANCOVA|t.?test|chi.?square|logistic regression|cox regression|kaplan.?meier).{0,100}`),
	}},
	{"randomization", []*regexp.Regexp{
		regexp.MustCompile(`(?is)(?:randomization|randomisation|randomized):\s*(.+?)(?:\n|$)`),
		regexp.MustCompile(`(?is)(?:subjects.{0,50}randomized.{0,50}to)(.+?)(?:\n|$)`),
		regexp.MustCompile(`(?is)(?:patients.{0,50}randomized.{0,50}in.{0,20}ratio)(.+?)(?:\n|$)`),
	}},
}

// Section captures: header and body up to the next heading-shaped line, a
// blank line, or end of text.
var (
	sampleSizeSectionRe = regexp.MustCompile(`(?is)(sample size determination|sample size)[\s\n]*[:\-]*[\s\n]*(.+?)(?:\n[A-Z][^\n]{0,60}\n|\n\n|$)`)

	primarySectionRe = regexp.MustCompile(`(?is)(analysis methods for efficacy endpoints|primary analysis approach|primary analysis|statistical methods for efficacy endpoints|statistical analysis)[\s\n]*[:\-]*[\s\n]*(.+?)(?:\n[A-Z][^\n]{0,60}\n|\n\n|$)`)

	missingDataSectionRe = regexp.MustCompile(`(?is)(missing data handling|missing data|imputation methods|handling of missing data|imputation strategy)[\s\n]*[:\-]*[\s\n]*(.+?)(?:\n[A-Z][^\n]{0,60}\n|\n\n|$)`)
)

func extractSection(re *regexp.Regexp, text string) string {
	match := re.FindStringSubmatch(text)
	if match == nil {
		return "Not found"
	}
	return strings.TrimSpace(match[1]) + "\n" + strings.TrimSpace(match[2])
}

var visitSchedulePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)visit schedule(.{0,300})`),
	regexp.MustCompile(`(?is)(?:baseline|screening).{0,100}(?:week|day|month)(.{0,200})`),
	regexp.MustCompile(`(?is)(?:follow.?up|assessment).{0,50}(?:visit|schedule)(.{0,200})`),
	regexp.MustCompile(`(?is)(?:week|day|month)\s*\d+(.{0,100}visit)`),
}

var visitFrequencyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:every|each)\s*(\d+\s*(?:week|day|month)s?)`),
	regexp.MustCompile(`(?i)(\d+\s*(?:week|day|month)ly)`),
	regexp.MustCompile(`(?i)(daily|weekly|monthly|quarterly)`),
}

func extractVisitSchedule(text string) map[string]string {
	out := map[string]string{
		"schedule_details": notSpecified,
		"visit_frequency":  notSpecified,
	}
	for _, re := range visitSchedulePatterns {
		if match := re.FindStringSubmatch(text); match != nil {
			out["schedule_details"] = clip(strings.TrimSpace(match[1]), 400)
			break
		}
	}
	for _, re := range visitFrequencyPatterns {
		if match := re.FindStringSubmatch(text); match != nil {
			out["visit_frequency"] = match[1]
			break
		}
	}
	return out
}

var treatmentArmPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:arm|group)\s*[a-z]?[:\s]*(.{0,100})`),
	regexp.MustCompile(`(?i)(?:treatment|intervention)\s*[a-z]?[:\s]*(.{0,100})`),
	regexp.MustCompile(`(?i)(?:experimental|control|placebo)\s*(?:arm|group)[:\s]*(.{0,100})`),
}

func extractTreatmentArms(text string) []string {
	arms := []string{}
	seen := map[string]bool{}
	for _, re := range treatmentArmPatterns {
		for _, match := range re.FindAllStringSubmatch(text, -1) {
			desc := strings.TrimSpace(match[1])
			if len(desc) <= 10 || seen[desc] {
				continue
			}
			seen[desc] = true
			arms = append(arms, clip(desc, 200))
			if len(arms) >= 5 {
				return arms
			}
		}
	}
	if len(arms) == 0 {
		return []string{notSpecified}
	}
	return arms
}

var inclusionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)inclusion criteria(.{0,500}?)(?:exclusion criteria|exclusion|$)`),
	regexp.MustCompile(`(?is)patients.{0,50}eligible(.{0,300}?)(?:exclusion|$)`),
	regexp.MustCompile(`(?is)subjects.{0,50}included(.{0,300}?)(?:exclusion|$)`),
}

var exclusionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)exclusion criteria(.{0,500}?)(?:\n\n|$)`),
	regexp.MustCompile(`(?is)patients.{0,50}excluded(.{0,300}?)(?:\n\n|$)`),
	regexp.MustCompile(`(?is)subjects.{0,50}excluded(.{0,300}?)(?:\n\n|$)`),
}

func extractCriteria(text string) map[string]string {
	out := map[string]string{
		"inclusion": notSpecified,
		"exclusion": notSpecified,
	}
	for _, re := range inclusionPatterns {
		if match := re.FindStringSubmatch(text); match != nil {
			out["inclusion"] = clip(strings.TrimSpace(match[1]), 500)
			break
		}
	}
	for _, re := range exclusionPatterns {
		if match := re.FindStringSubmatch(text); match != nil {
			out["exclusion"] = clip(strings.TrimSpace(match[1]), 500)
			break
		}
	}
	return out
}

func clip(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// AnalyzeStudy runs the deep extraction used by the study_analysis tool.
func AnalyzeStudy(text, path, studyID string) map[string]any {
	fields := extractFields(text, deepPatterns)

	filename := filepath.Base(path)
	detectedPhase := DetectPhase(fields["title"], filename, fields["study_design"])

	sampleSection := extractSection(sampleSizeSectionRe, text)
	criteria := extractCriteria(text)

	keyFields := []string{"title", "primary_endpoint", "statistical_method", "study_design"}
	filled := 0
	for _, field := range keyFields {
		if fields[field] != "" {
			filled++
		}
	}
	confidence := "Low"
	switch {
	case filled >= 3 && sampleSection != "Not found":
		confidence = "High"
	case filled >= 2:
		confidence = "Medium"
	}

	return map[string]any{
		"study_identification": map[string]any{
			"study_id":       studyID,
			"title":          orDefault(fields["title"], "Document: "+filename),
			"sponsor":        orDefault(fields["pharma"], notSpecified),
			"detected_phase": detectedPhase,
			"source_file":    path,
		},
		"study_design": map[string]any{
			"design_type":    orDefault(fields["study_design"], notSpecified),
			"randomization":  orDefault(fields["randomization"], notSpecified),
			"treatment_arms": extractTreatmentArms(text),
		},
		"sample_size_analysis": map[string]any{
			"sample_size_section": sampleSection,
		},
		"endpoints_and_objectives": map[string]any{
			"primary_endpoint":    orDefault(fields["primary_endpoint"], notSpecified),
			"secondary_endpoints": orDefault(fields["secondary_endpoints"], notSpecified),
		},
		"statistical_analysis_plan": map[string]any{
			"primary_analysis_method":  orDefault(fields["statistical_method"], notSpecified),
			"primary_analysis_section": extractSection(primarySectionRe, text),
			"missing_data_section":     extractSection(missingDataSectionRe, text),
		},
		"study_conduct": map[string]any{
			"visit_schedule":     extractVisitSchedule(text),
			"inclusion_criteria": criteria["inclusion"],
			"exclusion_criteria": criteria["exclusion"],
		},
		"document_metadata": map[string]any{
			"document_length":       len(text),
			"extraction_confidence": confidence,
		},
	}
}

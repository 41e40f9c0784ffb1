package googleads

// Wire types of the Google Ads REST search API. 64-bit integers arrive as JSON strings.

type searchRequest struct {
	Query     string `json:"query"`
	PageToken string `json:"pageToken,omitempty"`
}

type searchResponse struct {
	Results       []searchRow `json:"results"`
	NextPageToken string      `json:"nextPageToken"`
}

type listAccessibleCustomersResponse struct {
	ResourceNames []string `json:"resourceNames"`
}

type searchRow struct {
	Customer  *customerResource  `json:"customer,omitempty"`
	Campaign  *campaignResource  `json:"campaign,omitempty"`
	AdGroup   *adGroupResource   `json:"adGroup,omitempty"`
	AdGroupAd *adGroupAdResource `json:"adGroupAd,omitempty"`
	Segments  *segments          `json:"segments,omitempty"`
	Metrics   *metrics           `json:"metrics,omitempty"`
}

type customerResource struct {
	ID              string `json:"id"`
	DescriptiveName string `json:"descriptiveName"`
	CurrencyCode    string `json:"currencyCode"`
	TimeZone        string `json:"timeZone"`
	Manager         bool   `json:"manager"`
}

type campaignResource struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type adGroupResource struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type adResource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type adGroupAdResource struct {
	Ad     adResource `json:"ad"`
	Status string     `json:"status"`
}

type segments struct {
	Date string `json:"date"`
}

type metrics struct {
	Impressions      int64   `json:"impressions,string"`
	Clicks           int64   `json:"clicks,string"`
	CostMicros       int64   `json:"costMicros,string"`
	Conversions      float64 `json:"conversions"`
	ConversionsValue float64 `json:"conversionsValue"`
}

type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

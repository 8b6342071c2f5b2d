// Package api defines the request and response messages of the
// sambatan.v1.SambatanService RPC surface. Messages travel as JSON.
package api

// Location is a shipping origin or destination.
type Location struct {
	City       string `json:"city"`
	Province   string `json:"province,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
}

// GroupPurchase is the public view of a group purchase.
type GroupPurchase struct {
	Id                string `json:"id"`
	ProductId         string `json:"productId"`
	InitiatorId       string `json:"initiatorId"`
	TargetQuantity    int32  `json:"targetQuantity"`
	CommittedQuantity int32  `json:"committedQuantity"`
	Status            string `json:"status"`
	// Unix seconds; zero when unset.
	ExpiresAt int64 `json:"expiresAt,omitempty"`
	CreatedAt int64 `json:"createdAt"`
	ClosedAt  int64 `json:"closedAt,omitempty"`
}

// Participant is one buyer's commitment.
type Participant struct {
	Id                    string    `json:"id"`
	GroupPurchaseId       string    `json:"groupPurchaseId"`
	UserId                string    `json:"userId"`
	Destination           *Location `json:"destination,omitempty"`
	Quantity              int32     `json:"quantity"`
	JoinedAt              int64     `json:"joinedAt"`
	UsesOptimizedShipping bool      `json:"usesOptimizedShipping"`
	ChosenRateId          string    `json:"chosenRateId,omitempty"`
	WithdrawnAt           int64     `json:"withdrawnAt,omitempty"`
}

// ShippingRate is a quoted rate. Price is a decimal string.
type ShippingRate struct {
	Id            string `json:"id"`
	Provider      string `json:"provider"`
	ServiceTier   string `json:"serviceTier"`
	Price         string `json:"price"`
	EstimatedDays int32  `json:"estimatedDays"`
}

// ShippingRecommendation is the shipping advice for one participant.
type ShippingRecommendation struct {
	ParticipantId           string        `json:"participantId"`
	UserId                  string        `json:"userId"`
	IndividualRate          *ShippingRate `json:"individualRate,omitempty"`
	GroupRate               *ShippingRate `json:"groupRate,omitempty"`
	GroupShare              string        `json:"groupShare"`
	RecommendedRate         *ShippingRate `json:"recommendedRate,omitempty"`
	Savings                 string        `json:"savings"`
	UsesGroupRate           bool          `json:"usesGroupRate"`
	OptimizationUnavailable bool          `json:"optimizationUnavailable"`
}

type CreateGroupPurchaseRequest struct {
	ProductId      string `json:"productId"`
	TargetQuantity int32  `json:"targetQuantity"`
	// Unix seconds; zero for no expiration.
	ExpiresAt int64 `json:"expiresAt,omitempty"`
}

type CreateGroupPurchaseResponse struct {
	GroupPurchase *GroupPurchase `json:"groupPurchase"`
}

type RequestJoinRequest struct {
	GroupPurchaseId string    `json:"groupPurchaseId"`
	Quantity        int32     `json:"quantity"`
	Destination     *Location `json:"destination"`
}

type RequestJoinResponse struct {
	Participant    *Participant            `json:"participant"`
	GroupPurchase  *GroupPurchase          `json:"groupPurchase"`
	Recommendation *ShippingRecommendation `json:"recommendation"`
}

type RequestWithdrawRequest struct {
	GroupPurchaseId string `json:"groupPurchaseId"`
}

type RequestWithdrawResponse struct {
	Participant     *Participant              `json:"participant"`
	GroupPurchase   *GroupPurchase            `json:"groupPurchase"`
	Recommendations []*ShippingRecommendation `json:"recommendations"`
}

type GetStatusRequest struct {
	GroupPurchaseId string `json:"groupPurchaseId"`
	IncludeShipping bool   `json:"includeShipping,omitempty"`
}

type GetStatusResponse struct {
	GroupPurchase     *GroupPurchase            `json:"groupPurchase"`
	Participants      []*Participant            `json:"participants"`
	RemainingQuantity int32                     `json:"remainingQuantity"`
	Recommendations   []*ShippingRecommendation `json:"recommendations,omitempty"`
}

type CancelGroupPurchaseRequest struct {
	GroupPurchaseId string `json:"groupPurchaseId"`
}

type CancelGroupPurchaseResponse struct {
	GroupPurchase *GroupPurchase `json:"groupPurchase"`
}

type RecordShippingChoiceRequest struct {
	ParticipantId string `json:"participantId"`
	RateId        string `json:"rateId"`
	UsedOptimized bool   `json:"usedOptimized"`
}

type RecordShippingChoiceResponse struct {
	Participant *Participant `json:"participant"`
}

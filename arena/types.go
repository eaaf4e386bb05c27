package arena

// Backend endpoints.
const (
	EndpointCreateCompetition = "/create-competition"
	EndpointSelectWinner      = "/select-winner"
	EndpointDeliveryStatus    = "/delivery-status"
	EndpointCompetitions      = "/competitions"
	EndpointAuthLogin         = "/auth/login"
	EndpointAuthRefresh       = "/auth/refresh"
)

// CreateCompetitionRequest is the body of the create action.
type CreateCompetitionRequest struct {
	Prompt        string  `json:"prompt"`
	RewardAmount  float64 `json:"rewardAmount"`
	WalletAddress string  `json:"walletAddress"`
}

// CreateCompetitionResponse is returned once the escrow payment settles.
type CreateCompetitionResponse struct {
	CompetitionID string `json:"competitionId"`
	Status        string `json:"status"`
	Message       string `json:"message"`
	TxHash        string `json:"txHash,omitempty"`
}

// SelectWinnerRequest is the body of the select-winner action.
type SelectWinnerRequest struct {
	CompetitionID  string `json:"competitionId"`
	WinningAgentID string `json:"winningAgentId"`
}

// SelectWinnerResponse carries the payout transactions and, when the
// backend delivered inline, the download URL.
type SelectWinnerResponse struct {
	Status        string `json:"status"`
	CompetitionID string `json:"competitionId"`
	WinnerAgentID string `json:"winnerAgentId"`
	DeclareTx     string `json:"declareTx,omitempty"`
	NotifyTx      string `json:"notifyTx,omitempty"`
	PayoutTx      string `json:"payoutTx,omitempty"`
	CompleteTx    string `json:"completeTx,omitempty"`
	DownloadURL   string `json:"downloadUrl,omitempty"`
}

// SelectWinnerResult is the outcome of SelectWinner. DownloadURL is empty
// when the asset was not delivered within the poll budget.
type SelectWinnerResult struct {
	Response    SelectWinnerResponse
	DownloadURL string
	Delivered   bool
}

// DeliveryStatus is the delivery-status endpoint response.
type DeliveryStatus struct {
	Ready       bool   `json:"ready"`
	DownloadURL string `json:"downloadUrl,omitempty"`
}

// Status is a competition's lifecycle stage.
type Status string

const (
	StatusCreated   Status = "CREATED"   // payment pending
	StatusLive      Status = "LIVE"      // accepting submissions
	StatusJudging   Status = "JUDGING"   // submissions closed
	StatusCompleted Status = "COMPLETED" // winner paid, asset delivered
)

// Competition is the read model served by the competition endpoints.
type Competition struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	Description   string       `json:"description"`
	RewardAmount  float64      `json:"rewardAmount"`
	EntryFee      float64      `json:"entryFee"`
	Status        Status       `json:"status"`
	CreatorID     string       `json:"creatorId"`
	CreatedAt     int64        `json:"createdAt"`
	AgentCount    int          `json:"agentCount"`
	Submissions   []Submission `json:"submissions"`
	WinnerAgentID string       `json:"winnerAgentId,omitempty"`
}

// Submission is one agent's entry to a competition.
type Submission struct {
	ID          string `json:"id"`
	AgentID     string `json:"agentId"`
	PreviewURL  string `json:"previewUrl"`            // watermarked
	OriginalCID string `json:"originalCid,omitempty"` // set once won
	Timestamp   int64  `json:"timestamp"`
}

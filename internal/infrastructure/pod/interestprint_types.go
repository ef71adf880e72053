package pod

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/storefront/backend/internal/domain/integration"
)

// InterestPrint wraps every response in {code, msg, data}; code 0 is success.
type interestprintEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// InterestPrint business error codes
const (
	interestprintCodeOK          = 0
	interestprintCodeAuth        = 1001
	interestprintCodeRateLimited = 1002
	interestprintCodeNotFound    = 2001
	interestprintCodeDuplicate   = 2002
)

type interestprintProduct struct {
	SpuID        string   `json:"spu_id"`
	SkuID        string   `json:"sku_id"`
	Name         string   `json:"name"`
	Desc         string   `json:"desc"`
	CategoryName string   `json:"category_name"`
	Price        string   `json:"price"`
	Pics         []string `json:"pics"`
	OnSale       bool     `json:"on_sale"`
}

type interestprintProductList struct {
	List  []interestprintProduct `json:"list"`
	Total int                    `json:"total"`
}

type interestprintGoods struct {
	SkuID string `json:"sku_id"`
	Num   int    `json:"num"`
	Price string `json:"price"`
}

type interestprintCreateOrder struct {
	OutOrderNo string               `json:"out_order_no"`
	Currency   string               `json:"currency"`
	Amount     string               `json:"amount"`
	Goods      []interestprintGoods `json:"goods"`
}

type interestprintOrder struct {
	OrderNo        string `json:"order_no"`
	OutOrderNo     string `json:"out_order_no"`
	State          int    `json:"state"`
	ExpressNo      string `json:"express_no"`
	ExpressCompany string `json:"express_company"`
	ExpressURL     string `json:"express_url"`
	CreateTime     int64  `json:"create_time"`
	UpdateTime     int64  `json:"update_time"`
}

// order states
const (
	interestprintStateCancelled = -1
	interestprintStateReceived  = 0
	interestprintStateProducing = 1
	interestprintStateShipped   = 2
	interestprintStateSigned    = 3
)

func mapInterestprintState(s int) integration.PartnerOrderStatus {
	switch s {
	case interestprintStateReceived:
		return integration.PartnerStatusReceived
	case interestprintStateProducing:
		return integration.PartnerStatusInProduction
	case interestprintStateShipped:
		return integration.PartnerStatusShipped
	case interestprintStateSigned:
		return integration.PartnerStatusDelivered
	case interestprintStateCancelled:
		return integration.PartnerStatusCancelled
	default:
		return integration.PartnerStatusUnknown
	}
}

// interestprintSign computes hex(HMAC-SHA256(secret, appKey + timestamp + body))
func interestprintSign(secret, appKey, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(appKey))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

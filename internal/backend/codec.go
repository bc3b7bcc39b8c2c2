package backend

import (
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/warungtech/pos-register/internal/domain/customer"
	"github.com/warungtech/pos-register/internal/domain/lot"
	"github.com/warungtech/pos-register/internal/register"
)

// --- Encoding ---

func encodeSearchFilter(f SearchFilter) []byte {
	var e jx.Encoder
	e.ObjStart()
	if f.Query != "" {
		e.FieldStart("query")
		e.Str(f.Query)
	}
	encodeStrArr(&e, "parent_category_ids", f.ParentCategoryIDs)
	encodeStrArr(&e, "category_ids", f.CategoryIDs)
	encodeStrArr(&e, "supplier_ids", f.SupplierIDs)
	if f.Limit > 0 {
		e.FieldStart("limit")
		e.Int(f.Limit)
	}
	e.ObjEnd()
	return e.Bytes()
}

func encodeCreateCustomer(in customer.CreateInput) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("full_name")
	e.Str(in.FullName)
	e.FieldStart("phone")
	e.Str(in.Phone)
	e.FieldStart("email")
	e.Str(in.Email)
	if in.LoyaltyCode != "" {
		e.FieldStart("loyalty_code")
		e.Str(in.LoyaltyCode)
	}
	e.ObjEnd()
	return e.Bytes()
}

func encodeSalesOrder(req register.SalesOrderRequest) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("order_code")
	e.Str(req.OrderCode)
	if req.CustomerID != "" {
		e.FieldStart("customer_id")
		e.Str(req.CustomerID)
	}
	e.FieldStart("loyalty_points_to_redeem")
	e.Int64(req.RedeemPoints)
	e.FieldStart("lines")
	e.ArrStart()
	for _, ln := range req.Lines {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Str(ln.ProductID)
		e.FieldStart("lot_id")
		e.Str(ln.LotID)
		e.FieldStart("quantity")
		encodeDecimal(&e, ln.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
	return e.Bytes()
}

func encodeStrArr(e *jx.Encoder, field string, values []string) {
	if len(values) == 0 {
		return
	}
	e.FieldStart(field)
	e.ArrStart()
	for _, v := range values {
		e.Str(v)
	}
	e.ArrEnd()
}

func encodeDecimal(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.String()))
}

// --- Decoding ---

func decodeLotList(body []byte) ([]lot.Lot, error) {
	var lots []lot.Lot
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "lots" {
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			l, err := decodeLot(d)
			if err != nil {
				return err
			}
			lots = append(lots, l)
			return nil
		})
	}); err != nil {
		return nil, err
	}
	return lots, nil
}

func decodeLot(d *jx.Decoder) (lot.Lot, error) {
	var l lot.Lot
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_id":
			l.ProductID, err = d.Str()
		case "lot_id":
			l.LotID, err = d.Str()
		case "sku":
			l.SKU, err = d.Str()
		case "lot_code":
			l.LotCode, err = d.Str()
		case "uom":
			l.UnitOfMeasure, err = d.Str()
		case "qty_on_hand":
			l.QtyOnHand, err = decodeDecimal(d)
		case "unit_price":
			l.UnitPrice, err = decodeDecimal(d)
		case "unit_cost":
			l.UnitCost, err = decodeDecimal(d)
		case "discount":
			l.Discount, err = decodeDecimal(d)
		case "expires_at":
			l.ExpiresAt, err = decodeTimePtr(d)
		case "supplier":
			l.Supplier, err = d.Str()
		case "category_id":
			l.CategoryID, err = d.Str()
		case "reorder_qty":
			var v *decimal.Decimal
			v, err = decodeDecimalPtr(d)
			l.ReorderQty = v
		case "min_margin":
			l.MinMargin, err = decodeDecimal(d)
		case "missing_cost":
			l.MissingCost, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
	return l, err
}

func decodeOrderContext(body []byte) (*register.OrderContext, error) {
	var oc register.OrderContext
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "cashier_id":
			oc.CashierID, err = d.Str()
		case "cashier_name":
			oc.CashierName, err = d.Str()
		case "order_code":
			oc.OrderCode, err = d.Str()
		case "generated_at":
			oc.GeneratedAt, err = decodeTime(d)
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return nil, err
	}
	return &oc, nil
}

func decodeCustomer(d *jx.Decoder) (*customer.Customer, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var c customer.Customer
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		return decodeCustomerField(d, key, &c)
	}); err != nil {
		return nil, err
	}
	return &c, nil
}

func decodeCustomerField(d *jx.Decoder, key string, c *customer.Customer) error {
	var err error
	switch key {
	case "id":
		c.ID, err = d.Str()
	case "full_name":
		c.FullName, err = d.Str()
	case "phone":
		c.Phone, err = d.Str()
	case "email":
		c.Email, err = d.Str()
	case "points":
		c.Points, err = d.Int64()
	default:
		err = d.Skip()
	}
	return err
}

func decodeCreateCustomerResponse(body []byte) (*customer.Customer, bool, error) {
	var (
		c       customer.Customer
		updated bool
	)
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key == "is_updated" {
			var err error
			updated, err = d.Bool()
			return err
		}
		return decodeCustomerField(d, key, &c)
	}); err != nil {
		return nil, false, err
	}
	return &c, updated, nil
}

func decodeSalesOrderResult(body []byte) (*register.SalesOrderResult, error) {
	var res register.SalesOrderResult
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			st, err := d.Str()
			res.Status = st
			return err
		case "pending":
			if d.Next() == jx.Null {
				return d.Null()
			}
			var ticket register.PendingTicket
			if err := d.Obj(func(d *jx.Decoder, key string) error {
				var err error
				switch key {
				case "pending_id":
					ticket.PendingID, err = d.Str()
				case "customer_email":
					ticket.CustomerEmail, err = d.Str()
				default:
					err = d.Skip()
				}
				return err
			}); err != nil {
				return err
			}
			res.Pending = &ticket
			return nil
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, err
	}
	if res.Status == "" {
		return nil, errors.New("missing order status")
	}
	return &res, nil
}

func decodePendingStatus(body []byte) (*register.PendingStatus, error) {
	var st register.PendingStatus
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "status":
			st.Status, err = d.Str()
		case "is_confirmed":
			st.Confirmed, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return nil, err
	}
	return &st, nil
}

// decodeErrorMessage extracts {"message": ...} from an error body, tolerating
// anything else.
func decodeErrorMessage(body []byte) string {
	var msg string
	d := jx.DecodeBytes(body)
	_ = d.Obj(func(d *jx.Decoder, key string) error {
		if key != "message" {
			return d.Skip()
		}
		var err error
		msg, err = d.Str()
		return err
	})
	return msg
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	n, err := d.Num()
	if err != nil {
		return decimal.Decimal{}, err
	}
	// Platform decimals arrive as JSON numbers or as quoted strings.
	v, err := decimal.NewFromString(strings.Trim(string(n), `"`))
	if err != nil {
		return decimal.Decimal{}, errors.Wrap(err, "parse decimal")
	}
	return v, nil
}

func decodeDecimalPtr(d *jx.Decoder) (*decimal.Decimal, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := decodeDecimal(d)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "parse time")
	}
	return t, nil
}

func decodeTimePtr(d *jx.Decoder) (*time.Time, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	t, err := decodeTime(d)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

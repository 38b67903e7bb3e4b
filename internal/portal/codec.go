package portal

import (
	"io"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/cartsync/internal/domain/cart"
	"github.com/xenking/cartsync/internal/domain/product"
)

const wireDateFormat = "2006-01-02"

func encodeAddItem(productCode string, quantity int, subs []cart.Substitute) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("product_code")
	e.Str(productCode)
	e.FieldStart("quantity")
	e.Int(quantity)
	e.FieldStart("substitutes")
	e.ArrStart()
	for _, s := range subs {
		e.ObjStart()
		e.FieldStart("substitute_product_code")
		e.Str(s.ProductCode)
		e.FieldStart("priority")
		e.Int(s.Priority)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
	return e.Bytes()
}

func encodeQuantity(quantity int) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("quantity")
	e.Int(quantity)
	e.ObjEnd()
	return e.Bytes()
}

func encodeOrder(req cart.OrderRequest) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("delivery_date")
	e.Str(req.DeliveryDate.Format(wireDateFormat))
	if req.WindowStart != "" {
		e.FieldStart("delivery_window_start")
		e.Str(req.WindowStart)
	}
	if req.WindowEnd != "" {
		e.FieldStart("delivery_window_end")
		e.Str(req.WindowEnd)
	}
	e.ObjEnd()
	return e.Bytes()
}

func decodeLineBytes(data []byte) (cart.Line, error) {
	d := jx.DecodeBytes(data)
	return decodeLine(d)
}

func decodeLine(d *jx.Decoder) (cart.Line, error) {
	var l cart.Line
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "cart_item_id":
			id, err := d.Int64()
			if err != nil {
				return err
			}
			l.ID = cart.LineID(strconv.FormatInt(id, 10))
			return nil
		case "product_code":
			code, err := d.Str()
			l.ProductCode = code
			return err
		case "quantity":
			q, err := d.Int()
			l.Quantity = q
			return err
		case "risk_score":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := d.Float64()
			if err != nil {
				return err
			}
			l.RiskScore = &v
			return nil
		case "product":
			if d.Next() == jx.Null {
				return d.Null()
			}
			p, err := decodeProduct(d)
			if err != nil {
				return err
			}
			l.Product = &p
			return nil
		case "substitutes":
			return d.Arr(func(d *jx.Decoder) error {
				s, err := decodeSubstitute(d)
				if err != nil {
					return err
				}
				l.Substitutes = append(l.Substitutes, s)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return cart.Line{}, err
	}
	cart.SortSubstitutes(l.Substitutes)
	return l, nil
}

func decodeProduct(d *jx.Decoder) (product.Product, error) {
	var p product.Product
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "product_code":
			v, err := d.Str()
			p.Code = v
			return err
		case "product_name":
			v, err := d.Str()
			p.Name = v
			return err
		case "category":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := d.Str()
			p.Category = v
			return err
		case "unit_size":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := d.Str()
			p.UnitSize = v
			return err
		case "unit_type":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := d.Str()
			p.UnitType = v
			return err
		case "price":
			if d.Next() == jx.Null {
				return d.Null()
			}
			num, err := d.Num()
			if err != nil {
				return err
			}
			price, err := decimal.NewFromString(num.String())
			if err != nil {
				return errors.Wrap(err, "parse price")
			}
			p.Price = price
			return nil
		default:
			return d.Skip()
		}
	})
	return p, err
}

func decodeSubstitute(d *jx.Decoder) (cart.Substitute, error) {
	var s cart.Substitute
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "substitute_product_code":
			v, err := d.Str()
			s.ProductCode = v
			return err
		case "priority":
			v, err := d.Int()
			s.Priority = v
			return err
		default:
			return d.Skip()
		}
	})
	return s, err
}

func decodeCart(data []byte) ([]cart.Line, error) {
	var lines []cart.Line
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				l, err := decodeLine(d)
				if err != nil {
					return err
				}
				lines = append(lines, l)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	return lines, err
}

func decodeOrderID(data []byte) (string, error) {
	var orderID string
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "order_id":
			v, err := d.Str()
			orderID = v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return "", err
	}
	if orderID == "" {
		return "", errors.New("missing order_id in response")
	}
	return orderID, nil
}

func decodePredictions(r io.Reader) ([]cart.RiskResult, error) {
	var results []cart.RiskResult
	d := jx.Decode(r, 4096)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "predictions":
			return d.Arr(func(d *jx.Decoder) error {
				res, err := decodePrediction(d)
				if err != nil {
					return err
				}
				results = append(results, res)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	return results, err
}

func decodePrediction(d *jx.Decoder) (cart.RiskResult, error) {
	var r cart.RiskResult
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "product_code":
			v, err := d.Str()
			r.ProductCode = v
			return err
		case "shortage_probability":
			v, err := d.Float64()
			r.ShortageProbability = v
			return err
		case "shortage_flag_pred":
			v, err := d.Int()
			r.ShortageFlag = v != 0
			return err
		case "threshold_used":
			v, err := d.Float64()
			r.Threshold = v
			return err
		default:
			return d.Skip()
		}
	})
	return r, err
}

// decodeErrorDetail extracts the portal's {"detail": "..."} error message,
// falling back to the raw body.
func decodeErrorDetail(data []byte) string {
	var detail string
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "detail" {
			return d.Skip()
		}
		v, err := d.Str()
		detail = v
		return err
	})
	if err != nil || detail == "" {
		return string(data)
	}
	return detail
}

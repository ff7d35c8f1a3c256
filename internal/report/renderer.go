package report

import (
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/dlogic/tagreport/internal/model"
)

// レポートドキュメントのシート名。
const (
	sheetTempChart = "温度グラフ"
	sheetCapChart  = "湿度グラフ"
	sheetTempData  = "温度データ"
	sheetCapData   = "湿度データ"
	sheetSensors   = "センサー"
)

// cellTimeFormat はデータシートの日時セルの表示書式。
const cellTimeFormat = "dd.mm.yyyy hh:mm:ss"

// dataKind はチャート・データシートが扱う値の種別。
type dataKind int

const (
	dataTemperature dataKind = iota
	dataCap
)

// Renderer はゾーンのデータセットからxlsxレポートを生成する。
// 1ドキュメントあたり: チャート2枚（温度・湿度）、データ2枚、センサー情報1枚。
type Renderer struct {
	logger *slog.Logger
}

// NewRenderer はRendererを生成する。
func NewRenderer(logger *slog.Logger) *Renderer {
	return &Renderer{logger: logger}
}

// Render はゾーンのレポートドキュメントをdirに書き出し、パスとファイル名を返す。
// チャートのX軸はウィンドウにクランプし、Y軸は全センサーの値域±3
// （データなし時は温度0〜40、湿度0〜100）とする。
func (r *Renderer) Render(dataset model.ZoneDataset, start, end time.Time, dir string) (string, string, error) {
	f := excelize.NewFile()
	defer f.Close()

	// 既定シートを温度グラフに差し替え、残りを追加する
	if err := f.SetSheetName("Sheet1", sheetTempChart); err != nil {
		return "", "", fmt.Errorf("シートの作成に失敗しました: %w", err)
	}
	for _, name := range []string{sheetCapChart, sheetTempData, sheetCapData, sheetSensors} {
		if _, err := f.NewSheet(name); err != nil {
			return "", "", fmt.Errorf("シートの作成に失敗しました: %w", err)
		}
	}

	tempSeries, err := r.populateDataSheet(f, dataset, dataTemperature, sheetTempData)
	if err != nil {
		return "", "", err
	}
	capSeries, err := r.populateDataSheet(f, dataset, dataCap, sheetCapData)
	if err != nil {
		return "", "", err
	}

	if err := r.addChart(f, sheetTempChart, dataset, dataTemperature, tempSeries, start, end); err != nil {
		return "", "", err
	}
	if err := r.addChart(f, sheetCapChart, dataset, dataCap, capSeries, start, end); err != nil {
		return "", "", err
	}

	if err := r.populateSensorSheet(f, dataset.Sensors); err != nil {
		return "", "", err
	}

	filename := fmt.Sprintf("%s_%s.xlsx", dataset.Zone.Name, time.Now().Format("02-01-2006 15-04"))
	path := filepath.Join(dir, filename)
	if err := f.SaveAs(path); err != nil {
		return "", "", fmt.Errorf("レポートファイルの保存に失敗しました: %w", err)
	}

	r.logger.Info("レポートファイルを生成しました",
		slog.String("zone", dataset.Zone.Name),
		slog.String("file", filename),
		slog.Int("sensors", len(dataset.Sensors)),
		slog.Int("records", dataset.TotalRecords()),
	)
	return path, filename, nil
}

// populateDataSheet は測定値をデータシートに書き込み、
// チャート用のセル範囲参照を返す。
// センサーi（0始まり）は列2i+1（日時）と列2i+2（値）を占める。
func (r *Renderer) populateDataSheet(f *excelize.File, dataset model.ZoneDataset, kind dataKind, sheet string) ([]excelize.ChartSeries, error) {
	timeFmt := cellTimeFormat
	timeStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &timeFmt})
	if err != nil {
		return nil, fmt.Errorf("セルスタイルの作成に失敗しました: %w", err)
	}

	series := make([]excelize.ChartSeries, 0, len(dataset.Sensors))
	for i, s := range dataset.Sensors {
		timeCol := 2*i + 1
		valueCol := 2*i + 2

		headerTime, _ := excelize.CoordinatesToCellName(timeCol, 1)
		headerValue, _ := excelize.CoordinatesToCellName(valueCol, 1)
		if err := f.SetCellValue(sheet, headerTime, "日時"); err != nil {
			return nil, fmt.Errorf("セルの書き込みに失敗しました: %w", err)
		}
		if err := f.SetCellValue(sheet, headerValue, s.Sensor.Name); err != nil {
			return nil, fmt.Errorf("セルの書き込みに失敗しました: %w", err)
		}

		row := 1
		for _, m := range s.Records {
			row++
			timeCell, _ := excelize.CoordinatesToCellName(timeCol, row)
			valueCell, _ := excelize.CoordinatesToCellName(valueCol, row)

			if err := f.SetCellValue(sheet, timeCell, m.Time); err != nil {
				return nil, fmt.Errorf("セルの書き込みに失敗しました: %w", err)
			}
			if err := f.SetCellStyle(sheet, timeCell, timeCell, timeStyle); err != nil {
				return nil, fmt.Errorf("セルスタイルの適用に失敗しました: %w", err)
			}

			value := m.Temperature
			if kind == dataCap {
				value = m.Cap
			}
			if err := f.SetCellValue(sheet, valueCell, value); err != nil {
				return nil, fmt.Errorf("セルの書き込みに失敗しました: %w", err)
			}
		}

		if row > 1 {
			timeName, _ := excelize.ColumnNumberToName(timeCol)
			valueName, _ := excelize.ColumnNumberToName(valueCol)
			series = append(series, excelize.ChartSeries{
				Name:       fmt.Sprintf("'%s'!$%s$1", sheet, valueName),
				Categories: fmt.Sprintf("'%s'!$%s$2:$%s$%d", sheet, timeName, timeName, row),
				Values:     fmt.Sprintf("'%s'!$%s$2:$%s$%d", sheet, valueName, valueName, row),
			})
		}
	}
	return series, nil
}

// addChart はチャートシートに散布線チャートを追加する。
// 系列がひとつもない場合（全センサーがレコードゼロ）はチャートを省略する。
func (r *Renderer) addChart(f *excelize.File, sheet string, dataset model.ZoneDataset, kind dataKind, series []excelize.ChartSeries, start, end time.Time) error {
	if len(series) == 0 {
		r.logger.Warn("プロット可能な系列がないためチャートを省略します",
			slog.String("zone", dataset.Zone.Name), slog.String("sheet", sheet))
		return nil
	}

	yMin, yMax := yAxisRange(dataset, kind)
	xMin := excelSerial(start)
	xMax := excelSerial(end)

	subject := "温度"
	if kind == dataCap {
		subject = "湿度"
	}
	title := fmt.Sprintf("%sモニタリング %s (%s - %s)",
		subject, dataset.Zone.Name,
		start.Format("02.01.2006 15:04:05"), end.Format("02.01.2006 15:04:05"))

	chart := &excelize.Chart{
		Type:   excelize.ScatterSmoothLine,
		Series: series,
		Title:  []excelize.RichTextRun{{Text: title}},
		Dimension: excelize.ChartDimension{
			Width:  896,
			Height: 580,
		},
		Legend: excelize.ChartLegend{Position: "right"},
		XAxis: excelize.ChartAxis{
			Minimum: &xMin,
			Maximum: &xMax,
			NumFmt:  excelize.ChartNumFmt{CustomNumFmt: cellTimeFormat},
		},
		YAxis: excelize.ChartAxis{
			Minimum: &yMin,
			Maximum: &yMax,
			NumFmt:  excelize.ChartNumFmt{CustomNumFmt: "0.00"},
		},
	}
	if err := f.AddChart(sheet, "B2", chart); err != nil {
		return fmt.Errorf("チャートの追加に失敗しました: %w", err)
	}
	return nil
}

// populateSensorSheet はセンサー情報シートを書き込む。
// 1行目が見出し、2行目以降がセンサーごとの1行。
func (r *Renderer) populateSensorSheet(f *excelize.File, sensors []model.SensorSeries) error {
	headers := []string{"アカウント", "マネージャ", "MAC", "センサー"}
	for col, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheetSensors, cell, h); err != nil {
			return fmt.Errorf("セルの書き込みに失敗しました: %w", err)
		}
	}

	for i, s := range sensors {
		row := i + 2
		values := []string{s.Sensor.AccountEmail, s.Sensor.ManagerName, s.Sensor.ManagerMAC, s.Sensor.Name}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(sheetSensors, cell, v); err != nil {
				return fmt.Errorf("セルの書き込みに失敗しました: %w", err)
			}
		}
	}
	return nil
}

// yAxisRange は全センサーの値域からY軸の範囲を求める。
// データなし時の既定値は温度 0〜40、湿度 0〜100。
func yAxisRange(dataset model.ZoneDataset, kind dataKind) (float64, float64) {
	min := math.Inf(1)
	max := math.Inf(-1)
	found := false
	for _, s := range dataset.Sensors {
		for _, m := range s.Records {
			v := m.Temperature
			if kind == dataCap {
				v = m.Cap
			}
			min = math.Min(min, v)
			max = math.Max(max, v)
			found = true
		}
	}
	if !found {
		if kind == dataCap {
			return 0, 100
		}
		return 0, 40
	}
	return min - 3, max + 3
}

// excelSerial は日時をxlsxのシリアル値（1900年日付システム）に変換する。
// チャート軸のクランプに使用する。
func excelSerial(t time.Time) float64 {
	epoch := time.Date(1899, 12, 30, 0, 0, 0, 0, t.Location())
	return t.Sub(epoch).Hours() / 24
}

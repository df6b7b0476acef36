package heap

// Scan is a forward cursor over the occupied slots of a heap file. It is not
// restartable and not snapshot stable; callers hold at least an IS table lock
// so the file does not change shape underneath it.
type Scan struct {
	fh  *FileHandle
	rid Rid
}

// NewScan positions a fresh cursor at the first occupied slot.
func (fh *FileHandle) NewScan() (*Scan, error) {
	scan := &Scan{
		fh:  fh,
		rid: Rid{PageNo: firstRecordPage, SlotNo: -1},
	}
	err := scan.Next()
	if err != nil {
		return nil, err
	}
	return scan, nil
}

// Next advances to the next occupied slot; at the end of the file the cursor
// page becomes NoPage.
func (scan *Scan) Next() error {
	fh := scan.fh

	fh.mu.Lock()
	defer fh.mu.Unlock()

	for scan.rid.PageNo < fh.hdr.numPages {
		ph, err := fh.fetchPage(scan.rid.PageNo)
		if err != nil {
			return err
		}
		slotNo := bitmapNextSet(ph.bitmap(), int(fh.hdr.numRecordsPerPage),
			int(scan.rid.SlotNo))
		err = fh.unpin(ph, false)
		if err != nil {
			return err
		}
		if slotNo < int(fh.hdr.numRecordsPerPage) {
			scan.rid.SlotNo = int32(slotNo)
			return nil
		}
		scan.rid.SlotNo = -1
		scan.rid.PageNo += 1
	}

	scan.rid.PageNo = NoPage
	return nil
}

func (scan *Scan) IsEnd() bool {
	return scan.rid.PageNo == NoPage
}

func (scan *Scan) Rid() Rid {
	return scan.rid
}

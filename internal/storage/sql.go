package storage

import (
	_ "embed"
)

const (
	insertFiberSQL = `
INSERT INTO fibers (
                    shot,
                    ifux,
                    ifuy,
                    ra,
                    dec,
                    expnum,
                    calfib,
                    calfibe,
                    fiber_to_fiber,
                    amp2amp)
VALUES `

	insertTargetSQL = `
INSERT INTO targets (
                     star_id,
                     ra,
                     dec,
                     gmag)
VALUES `

	selectRegionSQL = `
SELECT
    id,
    ra,
    dec
FROM fibers
WHERE
    dec BETWEEN ? AND ?
    AND ra BETWEEN ? AND ?
ORDER BY id`

	selectFibersSQL = `
SELECT
    id,
    ifux,
    ifuy,
    ra,
    dec,
    expnum,
    calfib,
    calfibe,
    fiber_to_fiber,
    amp2amp
FROM fibers
WHERE
    id IN (%s)`

	selectTargetsSQL = `
SELECT
    id,
    star_id,
    ra,
    dec,
    gmag
FROM targets
ORDER BY id`

	countFibersSQL = `SELECT COUNT(*) FROM fibers`
)

//go:embed schema.sql
var schemaSQL string
